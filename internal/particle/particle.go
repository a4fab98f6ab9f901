package particle

// ID addresses a particle inside one rank's store. It is local to that rank:
// a migrated particle gets a fresh ID from its new owner.
type ID int32

// Particle is the state of a single body. Six float64 words, in wire order.
type Particle struct {
	X, Y   float64
	VX, VY float64
	AX, AY float64
}

// Words is the number of float64 values in an encoded particle.
const Words = 6

// Size is the encoded size of one particle in bytes.
const Size = Words * 8
