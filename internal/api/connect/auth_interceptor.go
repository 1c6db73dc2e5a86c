// Package connect provides the Connect RPC admin service.
package connect

import (
	"context"
	"crypto/subtle"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicequeue/internal/infra/config"
)

// AdminTokenHeader carries the shared admin token.
const AdminTokenHeader = "X-Admin-Token"

var errInvalidToken = errors.New("missing or invalid admin token")

// tokenInterceptor rejects handler calls whose AdminTokenHeader does not
// match the configured token. Client-side calls pass through.
type tokenInterceptor struct {
	token []byte
}

// NewAdminAuthInterceptor returns the interceptor guarding every admin
// procedure, streams included.
func NewAdminAuthInterceptor(cfg *config.Config) connect.Interceptor {
	return &tokenInterceptor{token: []byte(cfg.Admin.Token)}
}

func (i *tokenInterceptor) check(procedure, peer, token string) error {
	if len(i.token) > 0 && subtle.ConstantTimeCompare([]byte(token), i.token) == 1 {
		return nil
	}
	zlog.Warn().Msgf("admin: rejected call: procedure=%s peer=%s token_present=%t", procedure, peer, token != "")
	return connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
}

func (i *tokenInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if !req.Spec().IsClient {
			if err := i.check(req.Spec().Procedure, req.Peer().Addr, req.Header().Get(AdminTokenHeader)); err != nil {
				return nil, err
			}
		}
		return next(ctx, req)
	}
}

func (i *tokenInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *tokenInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if err := i.check(conn.Spec().Procedure, conn.Peer().Addr, conn.RequestHeader().Get(AdminTokenHeader)); err != nil {
			return err
		}
		return next(ctx, conn)
	}
}
