package proxy

import (
	"context"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakeview/config"
)

func startServer(t *testing.T) net.Addr {
	t.Helper()
	conn, _ := testConnector(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := newServer(&config.Config{}, conn, listener, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv.Addr()
}

func connect(t *testing.T, addr net.Addr) *pgproto3.Frontend {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	fe := pgproto3.NewFrontend(conn, conn)
	fe.Send(&pgproto3.StartupMessage{
		ProtocolVersion: pgproto3.ProtocolVersionNumber,
		Parameters:      map[string]string{"user": "test", "database": "lake"},
	})
	require.NoError(t, fe.Flush())

	for {
		msg, err := fe.Receive()
		require.NoError(t, err)
		if _, ok := msg.(*pgproto3.ReadyForQuery); ok {
			return fe
		}
	}
}

// simpleQuery sends sql and collects the response up to ReadyForQuery.
func simpleQuery(t *testing.T, fe *pgproto3.Frontend, sql string) (cols []string, rows [][]string, tag string, errResp *pgproto3.ErrorResponse) {
	t.Helper()
	fe.Send(&pgproto3.Query{String: sql})
	require.NoError(t, fe.Flush())

	for {
		msg, err := fe.Receive()
		require.NoError(t, err)
		switch msg := msg.(type) {
		case *pgproto3.RowDescription:
			for _, f := range msg.Fields {
				cols = append(cols, string(f.Name))
			}
		case *pgproto3.DataRow:
			row := make([]string, len(msg.Values))
			for i, v := range msg.Values {
				row[i] = string(v)
			}
			rows = append(rows, row)
		case *pgproto3.CommandComplete:
			tag = string(msg.CommandTag)
		case *pgproto3.ErrorResponse:
			copied := *msg
			errResp = &copied
		case *pgproto3.ReadyForQuery:
			return
		}
	}
}

func TestServer_SimpleQueries(t *testing.T) {
	fe := connect(t, startServer(t))

	cols, rows, tag, errResp := simpleQuery(t, fe, "SHOW SCHEMAS")
	require.Nil(t, errResp)
	assert.Equal(t, []string{"schema_name"}, cols)
	assert.Equal(t, [][]string{{"web"}}, rows)
	assert.Equal(t, "SELECT 1", tag)

	cols, rows, tag, errResp = simpleQuery(t, fe, "SELECT status, server FROM web.access WHERE server = 'server-1011' AND status = 404")
	require.Nil(t, errResp)
	assert.Equal(t, []string{"status", "server"}, cols)
	assert.Equal(t, [][]string{{"404", "server-1011"}}, rows)
	assert.Equal(t, "SELECT 1", tag)
}

func TestServer_ErrorsKeepSessionUsable(t *testing.T) {
	fe := connect(t, startServer(t))

	_, _, _, errResp := simpleQuery(t, fe, "DELETE FROM web.access")
	require.NotNil(t, errResp)
	assert.Equal(t, "0A000", errResp.Code)

	_, _, _, errResp = simpleQuery(t, fe, "SELECT * FROM web.access WHERE")
	require.NotNil(t, errResp)
	assert.Equal(t, "42601", errResp.Code)

	_, _, _, errResp = simpleQuery(t, fe, "SELECT * FROM web.missing")
	require.NotNil(t, errResp)
	assert.Equal(t, "42P01", errResp.Code)

	_, rows, _, errResp := simpleQuery(t, fe, "SHOW TABLES")
	require.Nil(t, errResp)
	assert.Equal(t, [][]string{{"web", "access"}}, rows)
}

func TestServer_EmptyQuery(t *testing.T) {
	fe := connect(t, startServer(t))

	fe.Send(&pgproto3.Query{String: " ; "})
	require.NoError(t, fe.Flush())
	msg, err := fe.Receive()
	require.NoError(t, err)
	assert.IsType(t, &pgproto3.EmptyQueryResponse{}, msg)
	msg, err = fe.Receive()
	require.NoError(t, err)
	assert.IsType(t, &pgproto3.ReadyForQuery{}, msg)
}
