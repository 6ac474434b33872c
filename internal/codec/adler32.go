package codec

// adlerModulo is the largest prime smaller than 2^16, per RFC 1950.
const adlerModulo = 65521

// Adler32 is a streaming Adler-32 checksum. The zero value is not valid;
// use NewAdler32.
type Adler32 struct {
	a, b uint32
}

// NewAdler32 returns a checksum initialized to a=1, b=0.
func NewAdler32() *Adler32 {
	return &Adler32{a: 1}
}

// Write folds p into the running checksum. It never fails; the error return
// exists to satisfy io.Writer.
func (d *Adler32) Write(p []byte) (int, error) {
	a, b := d.a, d.b
	for _, c := range p {
		a = (a + uint32(c)) % adlerModulo
		b = (b + a) % adlerModulo
	}
	d.a, d.b = a, b
	return len(p), nil
}

// Sum32 returns the checksum of all bytes written so far.
func (d *Adler32) Sum32() uint32 {
	return d.b<<16 | d.a
}

// Reset restores the initial state.
func (d *Adler32) Reset() {
	d.a, d.b = 1, 0
}

// Checksum computes the Adler-32 checksum of data in one shot.
func Checksum(data []byte) uint32 {
	d := NewAdler32()
	d.Write(data)
	return d.Sum32()
}
