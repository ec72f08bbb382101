// Package preprocess orchestrates building all H BigBoxes from the server's
// (item, label) set and producing the serving layout consumed at query time
// (spec.md §4.4).
package preprocess

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Janmajayamall/ulpsi/internal/bigbox"
	"github.com/Janmajayamall/ulpsi/internal/cuckoo"
	"github.com/Janmajayamall/ulpsi/internal/fhe"
	"github.com/Janmajayamall/ulpsi/internal/params"
	"github.com/Janmajayamall/ulpsi/internal/psierr"
)

// Item is one server-set (item, label) pair, prior to chunking.
type Item struct {
	V     *uint256.Int
	Label *uint256.Int
}

// Preprocessor builds the H BigBoxes for one server set under one fixed
// PsiParams.
type Preprocessor struct {
	params  params.PsiParams
	fheP    fhe.Parameters
	hasher  *cuckoo.Hasher
	chunker *cuckoo.Chunker
	log     *zap.SugaredLogger
}

// New validates p and builds the Hasher/Chunker it implies.
func New(p params.PsiParams, log *zap.SugaredLogger) (*Preprocessor, error) {
	if err := p.Validate(); err != nil {
		return nil, psierr.New(psierr.ConfigMismatch, "preprocess.New", err)
	}
	fheP, err := p.FHEParameters()
	if err != nil {
		return nil, psierr.New(psierr.ConfigMismatch, "preprocess.New", err)
	}
	hasher, err := cuckoo.NewHasher(p.HashKeys, p.HTSize)
	if err != nil {
		return nil, psierr.New(psierr.Internal, "preprocess.New", err)
	}
	chunker, err := cuckoo.NewChunker(p.PsiPtSlots, p.ChunkBits, p.TweakKey)
	if err != nil {
		return nil, psierr.New(psierr.Internal, "preprocess.New", err)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Preprocessor{params: p, fheP: fheP, hasher: hasher, chunker: chunker, log: log}, nil
}

// Build ingests the full server set and returns the H frozen BigBoxes.
// Ingestion is all-or-nothing (spec.md §7): every duplicate item is
// collected into a single aggregate error rather than aborting on the
// first one, but if any are found the whole build fails.
func (pp *Preprocessor) Build(ctx context.Context, items []Item) ([]*bigbox.BigBox, error) {
	if err := pp.checkDuplicates(items); err != nil {
		return nil, err
	}

	shape := pp.params.InnerBoxShape(pp.fheP.Slots())

	boxes := make([]*bigbox.BigBox, pp.params.H)
	for k := range boxes {
		bb, err := bigbox.New(k, pp.hasher, shape)
		if err != nil {
			return nil, psierr.New(psierr.Internal, "preprocess.Build", err)
		}
		boxes[k] = bb
	}

	g, _ := errgroup.WithContext(ctx)
	for k := range boxes {
		k := k
		g.Go(func() error {
			bb := boxes[k]
			for _, it := range items {
				itemChunks := pp.chunker.Encode(it.V)
				labelChunks := pp.chunker.Encode(it.Label)
				if err := bb.Insert(it.V, itemChunks, labelChunks); err != nil {
					return fmt.Errorf("table %d: %w", k, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, psierr.New(psierr.Internal, "preprocess.Build", err)
	}

	g2, _ := errgroup.WithContext(ctx)
	for _, bb := range boxes {
		bb := bb
		g2.Go(bb.Freeze)
	}
	if err := g2.Wait(); err != nil {
		return nil, psierr.New(psierr.Internal, "preprocess.Build", err)
	}

	pp.log.Infow("preprocessing complete", "items", len(items), "tables", pp.params.H)
	return boxes, nil
}

func (pp *Preprocessor) checkDuplicates(items []Item) error {
	seen := make(map[[32]byte]struct{}, len(items))
	var merr *multierror.Error
	for _, it := range items {
		key := it.V.Bytes32()
		if _, ok := seen[key]; ok {
			merr = multierror.Append(merr, fmt.Errorf("duplicate server item %x", key))
			continue
		}
		seen[key] = struct{}{}
	}
	if merr != nil {
		return psierr.New(psierr.InputEncoding, "preprocess.checkDuplicates", merr.ErrorOrNil())
	}
	return nil
}
