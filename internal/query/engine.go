package query

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Janmajayamall/ulpsi/internal/fhe"
	"github.com/Janmajayamall/ulpsi/internal/preprocess"
	"github.com/Janmajayamall/ulpsi/internal/psierr"
)

// SegmentQuery carries one BigBox-Segment's worth of SRC_POWERS ciphertexts:
// the client's encode_item chunks for that segment's logical rows, raised
// to every exponent in SrcPowers.
type SegmentQuery struct {
	SrcPowers map[int]*fhe.Ciphertext
}

// Query is the full client request: one SegmentQuery per (BigBox, Segment),
// indexed [table][segment]. The evaluation keys needed to relinearize and
// mod-switch while expanding powers are bound into the *fhe.Evaluator the
// caller passes to Evaluate, not carried on Query itself.
type Query struct {
	Tables [][]SegmentQuery
}

// Response is one ciphertext per Segment, in row-major segment order,
// already folded across all H BigBoxes (spec.md §6).
type Response struct {
	Segments []*fhe.Ciphertext
}

// Engine evaluates Queries against a fixed, frozen ServingLayout.
type Engine struct {
	layout  *preprocess.ServingLayout
	params  fhe.Parameters
	target  []int
	zeroPt  *fhe.Plaintext
}

// NewEngine prepares an Engine bound to one serving layout. The target
// power set is taken from layout.Params.TargetPowers().
func NewEngine(layout *preprocess.ServingLayout, params fhe.Parameters, enc *fhe.Encoder) (*Engine, error) {
	zeros := make([]uint64, params.Slots())
	zeroPt := fhe.NewPlaintext(params)
	if err := enc.Encode(zeros, zeroPt); err != nil {
		return nil, fmt.Errorf("query: encoding zero plaintext: %w", err)
	}
	return &Engine{
		layout: layout,
		params: params,
		target: layout.Params.TargetPowers(),
		zeroPt: zeroPt,
	}, nil
}

// Evaluate runs the full pipeline of spec.md §4.5 for one Query: expand
// powers per (table, segment), take the per-InnerBox inner product, and
// fold the H tables' contributions into one response ciphertext per
// segment. Segments are independent and evaluated concurrently.
func (e *Engine) Evaluate(ctx context.Context, q *Query, eval *fhe.Evaluator) (*Response, error) {
	numSegments := len(e.layout.Tables[0])
	for k, segs := range e.layout.Tables {
		if len(segs) != numSegments {
			return nil, psierr.New(psierr.Internal, "query.Evaluate",
				fmt.Errorf("table %d has %d segments, want %d", k, len(segs), numSegments))
		}
	}
	if len(q.Tables) != len(e.layout.Tables) {
		return nil, psierr.New(psierr.Transport, "query.Evaluate",
			fmt.Errorf("query has %d tables, layout has %d", len(q.Tables), len(e.layout.Tables)))
	}

	out := make([]*fhe.Ciphertext, numSegments)
	g, _ := errgroup.WithContext(ctx)
	for s := 0; s < numSegments; s++ {
		s := s
		g.Go(func() error {
			resp, err := e.evaluateSegment(s, q, eval)
			if err != nil {
				return fmt.Errorf("segment %d: %w", s, err)
			}
			out[s] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, psierr.New(psierr.Internal, "query.Evaluate", err)
	}
	return &Response{Segments: out}, nil
}

func (e *Engine) evaluateSegment(s int, q *Query, eval *fhe.Evaluator) (*fhe.Ciphertext, error) {
	var acc *fhe.Ciphertext
	for k, segs := range e.layout.Tables {
		sq := q.Tables[k][s]
		basis := make(map[int]*fhe.Ciphertext, len(sq.SrcPowers)+len(e.target))
		for p, ct := range sq.SrcPowers {
			basis[p] = ct
		}
		if err := expandPowers(eval, basis, e.target); err != nil {
			return nil, fmt.Errorf("table %d: %w", k, err)
		}

		part, err := innerProduct(eval, basis, segs[s], e.zeroPt)
		if err != nil {
			return nil, fmt.Errorf("table %d: %w", k, err)
		}
		if part == nil {
			continue
		}
		if acc == nil {
			acc = part
			continue
		}
		acc, err = eval.AddNew(acc, part)
		if err != nil {
			return nil, fmt.Errorf("folding table %d: %w", k, err)
		}
	}

	if acc == nil {
		// No InnerBox in any of the H tables ever wrote to this segment;
		// still owe the caller a well-formed zero ciphertext so Response
		// always has exactly HT_SIZE/SEG_ROWS entries.
		any := firstSrcPower(q.Tables)
		if any == nil {
			return nil, fmt.Errorf("query carries no source powers at all")
		}
		return eval.MulPlainNew(any, e.zeroPt)
	}
	return acc, nil
}

func firstSrcPower(tables [][]SegmentQuery) *fhe.Ciphertext {
	for _, segs := range tables {
		for _, sq := range segs {
			for _, ct := range sq.SrcPowers {
				return ct
			}
		}
	}
	return nil
}

// innerProduct evaluates acc = sum_box sum_j basis[j] * box[j] for one
// (table, segment)'s InnerBoxes, matching spec.md §4.5 step 2. The j=0 term
// needs no power ciphertext (Q_power[0] is the plaintext constant 1), so it
// is folded in via plaintext addition once a ciphertext accumulator exists
// from some j>=1 term; every InnerBox's column count is EVAL_DEGREE+1>=2,
// so every box contributes at least one such term.
func innerProduct(eval *fhe.Evaluator, basis map[int]*fhe.Ciphertext, boxes [][]*fhe.Plaintext, zeroPt *fhe.Plaintext) (*fhe.Ciphertext, error) {
	var acc *fhe.Ciphertext
	for _, box := range boxes {
		for j := 1; j < len(box); j++ {
			pow, ok := basis[j]
			if !ok {
				return nil, fmt.Errorf("missing expanded power %d", j)
			}
			term, err := eval.MulPlainNew(pow, box[j])
			if err != nil {
				return nil, fmt.Errorf("multiplying power %d: %w", j, err)
			}
			if acc == nil {
				acc = term
				continue
			}
			acc, err = eval.AddNew(acc, term)
			if err != nil {
				return nil, fmt.Errorf("accumulating power %d: %w", j, err)
			}
		}
		var err error
		acc, err = eval.AddPlainNew(acc, box[0])
		if err != nil {
			return nil, fmt.Errorf("adding constant term: %w", err)
		}
	}
	return acc, nil
}
