// Package fhe is the single seam between the ULPSI engine and the BFV
// primitive. Apart from the modular-arithmetic helpers of lattigo's ring
// package (used by internal/interpolate and internal/client), nothing
// outside this package imports github.com/tuneinsight/lattigo/v5 directly:
// every other package only sees
// the operations spec.md §6 lists (encrypt, decrypt, add, sub, mul_plain,
// mul+relinearize, rotate, mod_switch) through the types below. BFV itself
// is treated as an opaque black box with a fixed interface; swapping the
// underlying scheme implementation should never require touching callers.
package fhe

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"github.com/tuneinsight/lattigo/v5/schemes/bfv"
)

// Ciphertext and Plaintext are re-exported so callers can store/serialize
// them without naming the lattigo package.
type (
	Ciphertext = rlwe.Ciphertext
	Plaintext  = rlwe.Plaintext
	PublicKey  = rlwe.PublicKey
	SecretKey  = rlwe.SecretKey
	GaloisKeys = rlwe.GaloisKey
	RelinKeys  = rlwe.RelinearizationKey
)

// ParamsLiteral is the subset of BFV parameters the ULPSI layer cares about;
// it is embedded inside params.PsiParams and carried across the wire.
type ParamsLiteral struct {
	LogN             int
	Q                []uint64
	P                []uint64
	PlaintextModulus uint64
}

// Parameters wraps the derived, immutable BFV parameter set.
type Parameters struct {
	inner bfv.Parameters
}

// NewParameters derives a full BFV parameter set from its literal form.
func NewParameters(lit ParamsLiteral) (Parameters, error) {
	p, err := bfv.NewParametersFromLiteral(bfv.ParametersLiteral{
		LogN:             lit.LogN,
		Q:                lit.Q,
		P:                lit.P,
		PlaintextModulus: lit.PlaintextModulus,
	})
	if err != nil {
		return Parameters{}, fmt.Errorf("fhe: deriving bfv parameters: %w", err)
	}
	return Parameters{inner: p}, nil
}

// Slots returns the number of SIMD batch slots per ciphertext (CT_SLOTS).
func (p Parameters) Slots() int { return p.inner.MaxSlots() }

// PlaintextModulus returns the BFV plaintext prime P.
func (p Parameters) PlaintextModulus() uint64 { return p.inner.PlaintextModulus() }

// MaxLevel returns the number of moduli available for mod-switching below
// the fresh-ciphertext level.
func (p Parameters) MaxLevel() int { return p.inner.MaxLevel() }

// GaloisElement returns the Galois group element implementing a rotation by
// k slots, for use when generating rotation (Galois) keys.
func (p Parameters) GaloisElement(k int) uint64 { return p.inner.GaloisElement(k) }

// raw exposes the wrapped lattigo parameters to the few internal
// constructors (KeyGenerator, Encoder, Encryptor, Decryptor, Evaluator) that
// need it; it is unexported at the package boundary in the sense that no
// caller outside this package has a use for the concrete bfv.Parameters
// type beyond passing it straight back into these constructors.
func (p Parameters) raw() bfv.Parameters { return p.inner }

// KeyGenerator produces key material deterministically reproducible only
// when seeded identically; the ULPSI protocol always runs it client-side.
type KeyGenerator struct {
	inner *rlwe.KeyGenerator
}

func NewKeyGenerator(params Parameters) *KeyGenerator {
	return &KeyGenerator{inner: rlwe.NewKeyGenerator(params.raw())}
}

func (k *KeyGenerator) GenSecretKey() *SecretKey { return k.inner.GenSecretKeyNew() }

func (k *KeyGenerator) GenPublicKey(sk *SecretKey) *PublicKey {
	return k.inner.GenPublicKeyNew(sk)
}

func (k *KeyGenerator) GenRelinearizationKey(sk *SecretKey) *RelinKeys {
	return k.inner.GenRelinearizationKeyNew(sk)
}

// GenGaloisKeys generates one rotation key per requested Galois element.
// Part of the fixed evaluation-key surface a client can hand the server;
// unused while segment slot layouts stay aligned 1:1 across tables.
func (k *KeyGenerator) GenGaloisKeys(galEls []uint64, sk *SecretKey) []*GaloisKeys {
	return k.inner.GenGaloisKeysNew(galEls, sk)
}

// EvaluationKeySet bundles the relinearization and rotation keys the server
// needs to evaluate a query; it is the only key material the client sends
// the server (never the secret key).
func NewEvaluationKeySet(rlk *RelinKeys, gks ...*GaloisKeys) rlwe.EvaluationKeySet {
	return rlwe.NewMemEvaluationKeySet(rlk, gks...)
}

// Encoder batches a slice of uint64 field elements into one plaintext's
// CT_SLOTS SIMD lanes, and back.
type Encoder struct {
	inner *bfv.Encoder
}

func NewEncoder(params Parameters) *Encoder { return &Encoder{inner: bfv.NewEncoder(params.raw())} }

func (e *Encoder) Encode(values []uint64, pt *Plaintext) error { return e.inner.Encode(values, pt) }

func (e *Encoder) Decode(pt *Plaintext, values []uint64) error { return e.inner.Decode(pt, values) }

func NewPlaintext(params Parameters) *Plaintext { return bfv.NewPlaintext(params.raw(), params.inner.MaxLevel()) }

// Encryptor/Decryptor wrap the asymmetric BFV encryption used for the
// client's query and the symmetric decryption used only by the client to
// read its own response.
type Encryptor struct{ inner *rlwe.Encryptor }

func NewEncryptor(params Parameters, key interface{}) (*Encryptor, error) {
	var enc *rlwe.Encryptor
	switch k := key.(type) {
	case *PublicKey:
		enc = bfv.NewEncryptor(params.raw(), k)
	case *SecretKey:
		enc = bfv.NewEncryptor(params.raw(), k)
	default:
		return nil, fmt.Errorf("fhe: NewEncryptor: unsupported key type %T", key)
	}
	return &Encryptor{inner: enc}, nil
}

func (e *Encryptor) EncryptNew(pt *Plaintext) (*Ciphertext, error) { return e.inner.EncryptNew(pt) }

type Decryptor struct{ inner *rlwe.Decryptor }

func NewDecryptor(params Parameters, sk *SecretKey) *Decryptor {
	return &Decryptor{inner: bfv.NewDecryptor(params.raw(), sk)}
}

func (d *Decryptor) DecryptNew(ct *Ciphertext) *Plaintext { return d.inner.DecryptNew(ct) }

// Evaluator performs every homomorphic operation the Query Engine needs:
// plaintext-ciphertext products for the per-InnerBox inner product, additive
// folding across InnerBoxes/BigBoxes, homomorphic squaring/multiplication to
// expand SRC_POWERS into TARGET_POWERS, and modulus switching after each
// such multiplication to keep the noise budget ahead of the next one.
type Evaluator struct {
	inner *bfv.Evaluator
}

func NewEvaluator(params Parameters, evk rlwe.EvaluationKeySet) *Evaluator {
	return &Evaluator{inner: bfv.NewEvaluator(params.raw(), evk)}
}

func (e *Evaluator) AddNew(a, b *Ciphertext) (*Ciphertext, error) { return e.inner.AddNew(a, b) }

func (e *Evaluator) SubNew(a, b *Ciphertext) (*Ciphertext, error) { return e.inner.SubNew(a, b) }

// AddPlainNew adds a plaintext into a ciphertext; used for the constant
// (x^0) term of the Horner sum, which needs no power ciphertext at all.
func (e *Evaluator) AddPlainNew(ct *Ciphertext, pt *Plaintext) (*Ciphertext, error) {
	return e.inner.AddNew(ct, pt)
}

// MulPlainNew computes a plaintext-ciphertext product; this is the
// workhorse of the per-InnerBox inner product (coeffs[:, j] * Q_power[j]).
func (e *Evaluator) MulPlainNew(ct *Ciphertext, pt *Plaintext) (*Ciphertext, error) {
	return e.inner.MulNew(ct, pt)
}

// MulRelinNew computes a ciphertext-ciphertext product and relinearizes the
// result back down to degree 1, used only while expanding TARGET_POWERS.
func (e *Evaluator) MulRelinNew(a, b *Ciphertext) (*Ciphertext, error) {
	ct, err := e.inner.MulNew(a, b)
	if err != nil {
		return nil, err
	}
	if err := e.inner.Relinearize(ct, ct); err != nil {
		return nil, err
	}
	return ct, nil
}

// Rotate cyclically shifts the batch slots of ct by k positions. Part of
// the fixed BFV primitive surface; not every caller needs it.
func (e *Evaluator) Rotate(ct *Ciphertext, k int) (*Ciphertext, error) {
	return e.inner.RotateColumnsNew(ct, k)
}

// ModSwitch divides ct (rounding) by the last modulus of its moduli chain,
// mirroring the BGV/BFV Rescale step: it keeps the plaintext bits intact
// while shrinking the ciphertext modulus, which is exactly the noise
// management primitive the TARGET_POWERS addition chain needs after every
// homomorphic multiplication.
func (e *Evaluator) ModSwitch(ct *Ciphertext) (*Ciphertext, error) {
	out := ct.CopyNew()
	if err := e.inner.Rescale(ct, out); err != nil {
		return nil, fmt.Errorf("fhe: mod switch: %w", err)
	}
	return out, nil
}

// Level reports how many moduli remain in ct's chain, i.e. how many more
// ModSwitch calls it can still absorb.
func Level(ct *Ciphertext) int { return ct.Level() }
