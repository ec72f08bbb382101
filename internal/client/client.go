// Package client is a thin collaborator: it mirrors the server's cuckoo
// placement over the client's own small set, builds the SRC_POWERS query
// ciphertexts, and checks that each decrypted label slot group is a
// well-formed chunk encoding. None of this is part of the core
// query-processing engine (spec.md §1); it exists so the engine can be
// exercised end to end.
package client

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/tuneinsight/lattigo/v5/ring"

	"github.com/Janmajayamall/ulpsi/internal/cuckoo"
	"github.com/Janmajayamall/ulpsi/internal/fhe"
	"github.com/Janmajayamall/ulpsi/internal/params"
	"github.com/Janmajayamall/ulpsi/internal/psierr"
	"github.com/Janmajayamall/ulpsi/internal/query"
)

// maxEvictionAttempts bounds cuckoo insertion attempts per item before the
// client gives up, per spec.md §7's CuckooFailure kind.
const maxEvictionAttempts = 500

// Client holds one session's key material and the cuckoo/chunking state
// mirroring the server's fixed PsiParams.
type Client struct {
	params  params.PsiParams
	fheP    fhe.Parameters
	hasher  *cuckoo.Hasher
	chunker *cuckoo.Chunker

	sk        *fhe.SecretKey
	pk        *fhe.PublicKey
	encryptor *fhe.Encryptor
	decryptor *fhe.Decryptor
	encoder   *fhe.Encoder
}

// New derives a fresh keypair and the cuckoo/chunking state for p.
func New(p params.PsiParams) (*Client, error) {
	fheP, err := p.FHEParameters()
	if err != nil {
		return nil, psierr.New(psierr.ConfigMismatch, "client.New", err)
	}
	hasher, err := cuckoo.NewHasher(p.HashKeys, p.HTSize)
	if err != nil {
		return nil, psierr.New(psierr.Internal, "client.New", err)
	}
	chunker, err := cuckoo.NewChunker(p.PsiPtSlots, p.ChunkBits, p.TweakKey)
	if err != nil {
		return nil, psierr.New(psierr.Internal, "client.New", err)
	}

	kg := fhe.NewKeyGenerator(fheP)
	sk := kg.GenSecretKey()
	pk := kg.GenPublicKey(sk)
	encryptor, err := fhe.NewEncryptor(fheP, pk)
	if err != nil {
		return nil, psierr.New(psierr.Internal, "client.New", err)
	}

	return &Client{
		params:    p,
		fheP:      fheP,
		hasher:    hasher,
		chunker:   chunker,
		sk:        sk,
		pk:        pk,
		encryptor: encryptor,
		decryptor: fhe.NewDecryptor(fheP, sk),
		encoder:   fhe.NewEncoder(fheP),
	}, nil
}

// RelinearizationKey generates a fresh relin key from the client's own
// secret key on every call; the server never sees sk itself.
func (c *Client) RelinearizationKey() *fhe.RelinKeys {
	return fhe.NewKeyGenerator(c.fheP).GenRelinearizationKey(c.sk)
}

// placement is the client's mirror of BigBox.Insert: tables[k][row] holds
// the item cuckoo-placed at row of table k, or nil. place is a pure
// function of items and the client's params: BuildQuery and Recover each
// call it independently and must derive the identical placement, so the
// eviction path cycles through tables in a fixed order rather than drawing
// from a process-global random source.
type placement struct {
	tables [][]*uint256.Int
}

func (c *Client) place(items []*uint256.Int) (*placement, error) {
	tables := make([][]*uint256.Int, c.params.H)
	for k := range tables {
		tables[k] = make([]*uint256.Int, c.params.HTSize)
	}

	for _, orig := range items {
		v := orig
		k := 0
		placed := false
		for attempt := 0; attempt < maxEvictionAttempts; attempt++ {
			row := c.hasher.RowIndex(k, v)
			if tables[k][row] == nil {
				tables[k][row] = v
				placed = true
				break
			}
			tables[k][row], v = v, tables[k][row]
			k = (k + 1) % c.params.H
		}
		if !placed {
			return nil, psierr.New(psierr.CuckooFailure, "client.place",
				fmt.Errorf("no placement found for an item after %d attempts", maxEvictionAttempts))
		}
	}
	return &placement{tables: tables}, nil
}

// BuildQuery places items into the mirrored cuckoo tables and produces the
// SRC_POWERS ciphertexts for every (table, segment), per spec.md §6's query
// wire format. Powers are computed in cleartext (the client already knows
// its own chunk values) and only then encrypted, per the "or sends them
// precomputed" branch of spec.md §4.5.
func (c *Client) BuildQuery(items []*uint256.Int) (*query.Query, error) {
	pl, err := c.place(items)
	if err != nil {
		return nil, err
	}

	segRows := c.params.InnerBoxShape(c.fheP.Slots()).SegRows()
	numSegments := int(c.params.HTSize) / segRows
	p := c.params.FHE.PlaintextModulus

	tables := make([][]query.SegmentQuery, c.params.H)
	for k := range tables {
		segs := make([]query.SegmentQuery, numSegments)
		for s := range segs {
			slots := make([]uint64, c.fheP.Slots())
			for logical := 0; logical < segRows; logical++ {
				row := s*segRows + logical
				v := pl.tables[k][row]
				if v == nil {
					continue
				}
				chunks := c.chunker.Encode(v)
				base := logical * c.params.PsiPtSlots
				for i, ch := range chunks {
					slots[base+i] = ch
				}
			}

			powers := make(map[int]*fhe.Ciphertext, len(c.params.SrcPowers))
			for _, pow := range c.params.SrcPowers {
				raised := make([]uint64, len(slots))
				for i, x := range slots {
					raised[i] = ring.ModExp(x, uint64(pow), p)
				}
				pt := fhe.NewPlaintext(c.fheP)
				if err := c.encoder.Encode(raised, pt); err != nil {
					return nil, fmt.Errorf("client: encoding table %d segment %d power %d: %w", k, s, pow, err)
				}
				ct, err := c.encryptor.EncryptNew(pt)
				if err != nil {
					return nil, fmt.Errorf("client: encrypting table %d segment %d power %d: %w", k, s, pow, err)
				}
				powers[pow] = ct
			}
			segs[s] = query.SegmentQuery{SrcPowers: powers}
		}
		tables[k] = segs
	}

	return &query.Query{Tables: tables}, nil
}

// Recovered is the outcome of Recover for one queried item.
type Recovered struct {
	Item         *uint256.Int
	LabelChunks  []uint64
	Found        bool
}

// Recover decrypts resp and, for each queried item, reports whether its
// label chunks were recovered and what they are. Found is true only when
// every decrypted chunk is a valid chunk encoding (non-zero and below
// 2^CHUNK_BITS). Candidate rows are re-derived from the same cuckoo
// placement BuildQuery used; placement depends on insertion order, so the
// caller must pass the identical items slice in the identical order.
func (c *Client) Recover(items []*uint256.Int, resp *query.Response) ([]Recovered, error) {
	pl, err := c.place(items)
	if err != nil {
		return nil, err
	}

	segRows := c.params.InnerBoxShape(c.fheP.Slots()).SegRows()
	out := make([]Recovered, 0, len(items))

	for _, v := range items {
		found := false
		var labelChunks []uint64
		for k := 0; k < c.params.H && !found; k++ {
			row := c.hasher.RowIndex(k, v)
			if pl.tables[k][row] == nil || !pl.tables[k][row].Eq(v) {
				continue
			}
			s := int(row) / segRows
			logical := int(row) % segRows
			if s >= len(resp.Segments) {
				return nil, psierr.New(psierr.Transport, "client.Recover",
					fmt.Errorf("response has %d segments, need segment %d", len(resp.Segments), s))
			}
			pt := c.decryptor.DecryptNew(resp.Segments[s])
			slots := make([]uint64, c.fheP.Slots())
			if err := c.encoder.Decode(pt, slots); err != nil {
				return nil, fmt.Errorf("client: decoding response segment %d: %w", s, err)
			}
			base := logical * c.params.PsiPtSlots
			labelChunks = append([]uint64(nil), slots[base:base+c.params.PsiPtSlots]...)
			found = true
			for _, ch := range labelChunks {
				if ch == 0 || ch>>c.params.ChunkBits != 0 {
					found = false
				}
			}
			break
		}
		out = append(out, Recovered{Item: v, LabelChunks: labelChunks, Found: found})
	}
	return out, nil
}
