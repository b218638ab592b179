package solana

import (
	"bytes"
	"crypto/ed25519"
	"io"

	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana/shortvec"
)

// Marshal encodes the transaction: the compact-u16 signature count, the
// signatures, then the message.
func (t Transaction) Marshal() []byte {
	var b bytes.Buffer

	writeLen(&b, len(t.Signatures))
	for _, s := range t.Signatures {
		b.Write(s[:])
	}
	b.Write(t.Message.Marshal())

	return b.Bytes()
}

func (t *Transaction) Unmarshal(b []byte) error {
	r := newWireReader(b)

	count, err := r.length("signature count")
	if err != nil {
		return err
	}

	t.Signatures = make([]Signature, count)
	for i := range t.Signatures {
		if err := r.fill(t.Signatures[i][:], "signature"); err != nil {
			return err
		}
	}

	return t.Message.Unmarshal(r.remaining())
}

// Marshal encodes the message in the legacy wire format. This is the byte
// string that signers sign.
func (m Message) Marshal() []byte {
	var b bytes.Buffer

	b.WriteByte(m.Header.NumSignatures)
	b.WriteByte(m.Header.NumReadonlySigned)
	b.WriteByte(m.Header.NumReadOnly)

	writeLen(&b, len(m.Accounts))
	for _, a := range m.Accounts {
		b.Write(a)
	}

	b.Write(m.RecentBlockhash[:])

	writeLen(&b, len(m.Instructions))
	for _, i := range m.Instructions {
		b.WriteByte(i.ProgramIndex)
		writeLen(&b, len(i.Accounts))
		b.Write(i.Accounts)
		writeLen(&b, len(i.Data))
		b.Write(i.Data)
	}

	return b.Bytes()
}

// Unmarshal decodes a legacy message. Versioned messages are rejected, as are
// instructions referencing accounts outside the account list.
func (m *Message) Unmarshal(b []byte) error {
	if len(b) == 0 {
		return errors.New("empty message")
	}
	if b[0]&0x80 != 0 {
		return errors.New("versioned messages not supported")
	}

	r := newWireReader(b)

	var header [3]byte
	if err := r.fill(header[:], "header"); err != nil {
		return err
	}
	m.Header = Header{
		NumSignatures:     header[0],
		NumReadonlySigned: header[1],
		NumReadOnly:       header[2],
	}

	accountCount, err := r.length("account count")
	if err != nil {
		return err
	}
	m.Accounts = make([]ed25519.PublicKey, accountCount)
	for i := range m.Accounts {
		m.Accounts[i] = make(ed25519.PublicKey, ed25519.PublicKeySize)
		if err := r.fill(m.Accounts[i], "account"); err != nil {
			return err
		}
	}

	if err := r.fill(m.RecentBlockhash[:], "recent blockhash"); err != nil {
		return err
	}

	instructionCount, err := r.length("instruction count")
	if err != nil {
		return err
	}
	m.Instructions = make([]CompiledInstruction, instructionCount)
	for i := range m.Instructions {
		c, err := r.instruction(len(m.Accounts))
		if err != nil {
			return errors.Wrapf(err, "instruction %d", i)
		}
		m.Instructions[i] = c
	}

	return nil
}

func writeLen(b *bytes.Buffer, n int) {
	// Writes to a bytes.Buffer only fail for lengths the wire format cannot
	// carry, which callers never produce.
	_, _ = shortvec.EncodeLen(b, n)
}

type wireReader struct {
	r *bytes.Reader
}

func newWireReader(b []byte) *wireReader {
	return &wireReader{r: bytes.NewReader(b)}
}

func (w *wireReader) length(field string) (int, error) {
	n, err := shortvec.DecodeLen(w.r)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read %s", field)
	}
	return n, nil
}

func (w *wireReader) fill(dst []byte, field string) error {
	if _, err := io.ReadFull(w.r, dst); err != nil {
		return errors.Wrapf(err, "failed to read %s", field)
	}
	return nil
}

func (w *wireReader) bytes(field string) ([]byte, error) {
	n, err := w.length(field + " length")
	if err != nil {
		return nil, err
	}

	b := make([]byte, n)
	return b, w.fill(b, field)
}

func (w *wireReader) remaining() []byte {
	b := make([]byte, w.r.Len())
	_, _ = w.r.Read(b)
	return b
}

func (w *wireReader) instruction(numAccounts int) (c CompiledInstruction, err error) {
	var program [1]byte
	if err := w.fill(program[:], "program index"); err != nil {
		return c, err
	}
	c.ProgramIndex = program[0]
	if int(c.ProgramIndex) >= numAccounts {
		return c, errors.Errorf("program index %d out of range", c.ProgramIndex)
	}

	if c.Accounts, err = w.bytes("accounts"); err != nil {
		return c, err
	}
	for _, index := range c.Accounts {
		if int(index) >= numAccounts {
			return c, errors.Errorf("account index %d out of range", index)
		}
	}

	if c.Data, err = w.bytes("data"); err != nil {
		return c, err
	}

	return c, nil
}
