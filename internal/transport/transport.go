// Package transport carries PsiParams, evaluation keys, Query, and Response
// messages over a plain length-prefixed TCP stream (spec.md §6 describes a
// custom binary wire format, not a specific RPC framework, so the core
// engine stays decoupled from any particular transport library).
package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/Janmajayamall/ulpsi/internal/fhe"
	"github.com/Janmajayamall/ulpsi/internal/params"
	"github.com/Janmajayamall/ulpsi/internal/preprocess"
	"github.com/Janmajayamall/ulpsi/internal/psierr"
	"github.com/Janmajayamall/ulpsi/internal/query"
	"github.com/Janmajayamall/ulpsi/internal/wire"
)

func writeFrame(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Server serves queries against one frozen serving layout until its
// listener is closed.
type Server struct {
	params params.PsiParams
	layout *preprocess.ServingLayout
	fheP   fhe.Parameters
	log    *zap.SugaredLogger
}

// NewServer binds a Server to layout.
func NewServer(layout *preprocess.ServingLayout, log *zap.SugaredLogger) (*Server, error) {
	fheP, err := layout.Params.FHEParameters()
	if err != nil {
		return nil, psierr.New(psierr.ConfigMismatch, "transport.NewServer", err)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{params: layout.Params, layout: layout, fheP: fheP, log: log}, nil
}

// ListenAndServe accepts connections on addr until ctx is cancelled, each on
// its own goroutine; query processing within one connection is sequential,
// but connections themselves run concurrently without shared mutable state
// beyond the read-only serving layout (spec.md §5).
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return psierr.New(psierr.Transport, "transport.ListenAndServe", err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Infow("listening", "addr", addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			s.log.Errorw("accept failed", "err", err)
			continue
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	if err := s.serveConn(conn); err != nil && !errors.Is(err, io.EOF) {
		s.log.Errorw("connection failed", "remote", conn.RemoteAddr(), "err", err)
	}
}

func (s *Server) serveConn(conn net.Conn) error {
	clientParamsBytes, err := readFrame(conn)
	if err != nil {
		return fmt.Errorf("reading params frame: %w", err)
	}
	var clientParams params.PsiParams
	if err := clientParams.UnmarshalBinary(clientParamsBytes); err != nil {
		return fmt.Errorf("decoding client params: %w", err)
	}
	if !clientParams.Equal(s.params) {
		return psierr.New(psierr.ConfigMismatch, "transport.serveConn",
			fmt.Errorf("client params do not match the server's compiled params"))
	}

	evkBytes, err := readFrame(conn)
	if err != nil {
		return fmt.Errorf("reading evaluation key frame: %w", err)
	}
	rlk, gks, err := wire.DecodeEvalKeys(evkBytes)
	if err != nil {
		return fmt.Errorf("decoding evaluation keys: %w", err)
	}
	evk := fhe.NewEvaluationKeySet(rlk, gks...)
	eval := fhe.NewEvaluator(s.fheP, evk)

	enc := fhe.NewEncoder(s.fheP)
	engine, err := query.NewEngine(s.layout, s.fheP, enc)
	if err != nil {
		return fmt.Errorf("building query engine: %w", err)
	}

	for {
		qBytes, err := readFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return psierr.New(psierr.Transport, "transport.serveConn", err)
		}
		q, err := wire.DecodeQuery(qBytes)
		if err != nil {
			return psierr.New(psierr.Transport, "transport.serveConn", fmt.Errorf("decoding query: %w", err))
		}

		resp, err := engine.Evaluate(context.Background(), q, eval)
		if err != nil {
			return fmt.Errorf("evaluating query: %w", err)
		}

		respBytes, err := wire.EncodeResponse(resp)
		if err != nil {
			return fmt.Errorf("encoding response: %w", err)
		}
		if err := writeFrame(conn, respBytes); err != nil {
			return psierr.New(psierr.Transport, "transport.serveConn", err)
		}
	}
}

// Query dials addr, performs the setup handshake (params equality, then
// evaluation keys), sends one Query, and returns the decoded Response.
func Query(addr string, p params.PsiParams, rlk *fhe.RelinKeys, gks []*fhe.GaloisKeys, q *query.Query) (*query.Response, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, psierr.New(psierr.Transport, "transport.Query", err)
	}
	defer conn.Close()

	pb, err := p.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshaling params: %w", err)
	}
	if err := writeFrame(conn, pb); err != nil {
		return nil, psierr.New(psierr.Transport, "transport.Query", err)
	}

	evkBytes, err := wire.EncodeEvalKeys(rlk, gks)
	if err != nil {
		return nil, fmt.Errorf("encoding evaluation keys: %w", err)
	}
	if err := writeFrame(conn, evkBytes); err != nil {
		return nil, psierr.New(psierr.Transport, "transport.Query", err)
	}

	qBytes, err := wire.EncodeQuery(q)
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}
	if err := writeFrame(conn, qBytes); err != nil {
		return nil, psierr.New(psierr.Transport, "transport.Query", err)
	}

	respBytes, err := readFrame(conn)
	if err != nil {
		return nil, psierr.New(psierr.Transport, "transport.Query", err)
	}
	return wire.DecodeResponse(respBytes)
}
