// Package proxy serves tables over the Postgres simple-query protocol so
// that psql and other Postgres clients can browse and scan them.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgproto3"

	"lakeview/config"
	"lakeview/connector"
	"lakeview/lakeerr"
	"lakeview/metrics"
	"lakeview/storage"
)

type Server struct {
	config   *config.Config
	exec     *executor
	listener net.Listener
	logger   *slog.Logger
}

// NewServer listens on the configured proxy port.
func NewServer(cfg *config.Config, conn *connector.Connector, logger *slog.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Proxy.Port))
	if err != nil {
		return nil, fmt.Errorf("creating listener: %w", err)
	}
	return newServer(cfg, conn, listener, logger), nil
}

func newServer(cfg *config.Config, conn *connector.Connector, listener net.Listener, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:   cfg,
		exec:     &executor{conn: conn, logger: logger},
		listener: listener,
		logger:   logger,
	}
}

// Addr is the address the server accepts connections on.
func (p *Server) Addr() net.Addr { return p.listener.Addr() }

// Start accepts connections until ctx is cancelled.
func (p *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		p.listener.Close()
	}()
	p.logger.Info("proxy listening", "addr", p.listener.Addr().String())

	for {
		conn, err := p.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			p.logger.Warn("accepting connection", "error", err)
			continue
		}

		go p.handleConnection(ctx, conn)
	}
}

func (p *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	logger := p.logger.With("remote", conn.RemoteAddr().String())

	backend := pgproto3.NewBackend(conn, conn)
	if err := p.startup(conn, backend); err != nil {
		logger.Debug("startup failed", "error", err)
		return
	}

	backend.Send(&pgproto3.AuthenticationOk{})
	backend.Send(&pgproto3.ParameterStatus{Name: "server_version", Value: "14.0"})
	backend.Send(&pgproto3.ParameterStatus{Name: "client_encoding", Value: "UTF8"})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	if err := backend.Flush(); err != nil {
		return
	}

	for {
		msg, err := backend.Receive()
		if err != nil {
			return
		}

		switch msg := msg.(type) {
		case *pgproto3.Query:
			if err := p.handleQuery(ctx, backend, msg.String, logger); err != nil {
				p.sendError(backend, err)
				continue
			}

		case *pgproto3.Terminate:
			return

		default:
			p.sendError(backend, fmt.Errorf("unsupported message %T; only simple queries are served", msg))
		}
	}
}

// startup reads the startup message, declining any encryption request.
func (p *Server) startup(conn net.Conn, backend *pgproto3.Backend) error {
	for {
		msg, err := backend.ReceiveStartupMessage()
		if err != nil {
			return err
		}
		switch msg.(type) {
		case *pgproto3.SSLRequest, *pgproto3.GSSEncRequest:
			if _, err := conn.Write([]byte{'N'}); err != nil {
				return err
			}
		case *pgproto3.StartupMessage:
			return nil
		case *pgproto3.CancelRequest:
			return errors.New("cancel requests are not supported")
		default:
			return fmt.Errorf("unexpected startup message %T", msg)
		}
	}
}

func (p *Server) handleQuery(ctx context.Context, backend *pgproto3.Backend, query string, logger *slog.Logger) error {
	queryID := uuid.New()
	logger = logger.With("query_id", queryID.String())
	start := time.Now()

	if strings.TrimSpace(strings.TrimRight(strings.TrimSpace(query), ";")) == "" {
		backend.Send(&pgproto3.EmptyQueryResponse{})
		backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
		return backend.Flush()
	}

	st, err := parseStatement(query)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("invalid", "error").Inc()
		logger.Info("rejected query", "query", query, "error", err)
		return err
	}

	w := &backendWriter{backend: backend}
	tag, err := p.exec.execute(ctx, st, w)
	metrics.QueriesTotal.WithLabelValues(st.kind.String(), metrics.Status(err)).Inc()
	metrics.QueryDuration.WithLabelValues(st.kind.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Warn("query failed", "query", query, "error", err, "duration", time.Since(start))
		return err
	}
	logger.Info("query finished", "query", query, "tag", tag, "duration", time.Since(start))

	backend.Send(&pgproto3.CommandComplete{CommandTag: []byte(tag)})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	return backend.Flush()
}

// backendWriter streams a result set to the client, flushing every
// flushEvery rows.
type backendWriter struct {
	backend *pgproto3.Backend
	pending int
}

const flushEvery = 256

func (w *backendWriter) describe(fields []field) error {
	descs := make([]pgproto3.FieldDescription, len(fields))
	for i, f := range fields {
		descs[i] = pgproto3.FieldDescription{
			Name:                 []byte(f.name),
			TableOID:             0,
			TableAttributeNumber: 0,
			DataTypeOID:          f.oid,
			DataTypeSize:         -1,
			TypeModifier:         -1,
			Format:               0,
		}
	}
	w.backend.Send(&pgproto3.RowDescription{Fields: descs})
	return nil
}

func (w *backendWriter) row(values [][]byte) error {
	w.backend.Send(&pgproto3.DataRow{Values: values})
	w.pending++
	if w.pending >= flushEvery {
		w.pending = 0
		return w.backend.Flush()
	}
	return nil
}

func (p *Server) sendError(backend *pgproto3.Backend, err error) {
	backend.Send(&pgproto3.ErrorResponse{
		Severity: "ERROR",
		Code:     sqlState(err),
		Message:  err.Error(),
	})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	_ = backend.Flush()
}

// sqlState maps an error to the closest Postgres error code.
func sqlState(err error) string {
	var (
		syntaxErr *SyntaxError
		unsupErr  *UnsupportedError
		colErr    *UndefinedColumnError
		tnf       *lakeerr.TableNotFoundError
		snf       *lakeerr.SchemaNotFoundError
		argErr    *lakeerr.IllegalArgumentError
		cfgErr    *lakeerr.ConfigError
		ffe       *lakeerr.FileFormatError
		ioErr     *lakeerr.IOError
	)
	switch {
	case errors.As(err, &syntaxErr):
		return "42601"
	case errors.As(err, &unsupErr):
		return "0A000"
	case errors.As(err, &colErr):
		return "42703"
	case errors.As(err, &tnf):
		return "42P01"
	case errors.As(err, &snf):
		return "3F000"
	case errors.As(err, &argErr), errors.As(err, &cfgErr):
		return "F0000"
	case errors.Is(err, storage.ErrNotFound):
		return "58P01"
	case errors.As(err, &ffe):
		return "22P02"
	case errors.As(err, &ioErr):
		return "58030"
	}
	return "XX000"
}
