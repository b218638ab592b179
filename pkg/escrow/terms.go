package escrow

import (
	"math"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// maxExactJSONInteger bounds the integers a JSON number decodes to without
// losing precision. Amounts at or above it must be written as decimal strings.
const maxExactJSONInteger = 1 << 53

// Terms are the immutable conditions of a single swap.
type Terms struct {
	TransferAmount uint64
	// ExpireDate is informational. The program records its own expiry.
	ExpireDate *uint64
}

// Validate checks that the terms describe a swap that can be executed.
func (t Terms) Validate() error {
	if t.TransferAmount == 0 {
		return errors.Wrap(ErrInvalidTerms, "transfer amount must be positive")
	}
	return nil
}

// LoadTerms reads terms from a JSON file of the form
// {"transferAmount": n, "expireDate": n}, where expireDate is optional. Values
// of 2^53 and above must be given as decimal strings, e.g. "18446744073709551615".
func LoadTerms(path string) (Terms, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return Terms{}, errors.Wrapf(err, "failed to read terms file %s", path)
	}

	if !v.IsSet("transferAmount") {
		return Terms{}, errors.Wrap(ErrInvalidTerms, "missing transferAmount")
	}

	var terms Terms

	amount, err := getExactUint64(v, "transferAmount")
	if err != nil {
		return Terms{}, err
	}
	terms.TransferAmount = amount

	if v.IsSet("expireDate") {
		expireDate, err := getExactUint64(v, "expireDate")
		if err != nil {
			return Terms{}, err
		}
		terms.ExpireDate = &expireDate
	}

	if err := terms.Validate(); err != nil {
		return Terms{}, err
	}

	return terms, nil
}

// getExactUint64 reads key as an unsigned integer, rejecting anything that
// would be rounded or truncated on the way to a uint64.
func getExactUint64(v *viper.Viper, key string) (uint64, error) {
	switch value := v.Get(key).(type) {
	case float64:
		if value < 0 {
			return 0, errors.Wrapf(ErrInvalidTerms, "negative %s", key)
		}
		if value != math.Trunc(value) {
			return 0, errors.Wrapf(ErrInvalidTerms, "%s is not an integer", key)
		}
		if value >= maxExactJSONInteger {
			return 0, errors.Wrapf(ErrInvalidTerms, "%s must be below 2^53 unless written as a string", key)
		}
		return uint64(value), nil
	case string:
		parsed, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(ErrInvalidTerms, "invalid %s: %v", key, err)
		}
		return parsed, nil
	default:
		return 0, errors.Wrapf(ErrInvalidTerms, "%s must be a number, got %T", key, value)
	}
}
