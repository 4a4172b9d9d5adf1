package rpc

import (
	"context"
	"crypto/subtle"
	"errors"

	"connectrpc.com/connect"
	"github.com/samber/lo"
)

// APIKeyHeader 鉴权请求头
const APIKeyHeader = "X-Api-Key"

var (
	errMissingKey = errors.New("missing or invalid api key")
	errVehicle    = errors.New("vehicle is not registered")
)

// VehicleScoped 携带车辆ID的请求消息
type VehicleScoped interface {
	VehicleKey() string
}

// AuthInterceptor 服务端鉴权拦截器
// 功能：校验X-Api-Key请求头，并对携带车辆ID的请求检查车辆白名单
// 说明：token为空时不校验请求头，vehicles为空时不校验车辆
type AuthInterceptor struct {
	token    string
	vehicles map[string]struct{}
}

var _ connect.Interceptor = (*AuthInterceptor)(nil)

// NewAuthInterceptor 创建服务端鉴权拦截器
func NewAuthInterceptor(token string, vehicles []string) *AuthInterceptor {
	return &AuthInterceptor{
		token:    token,
		vehicles: lo.SliceToMap(vehicles, func(v string) (string, struct{}) { return v, struct{}{} }),
	}
}

func (a *AuthInterceptor) checkKey(got string) error {
	if a.token == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.token)) != 1 {
		return connect.NewError(connect.CodeUnauthenticated, errMissingKey)
	}
	return nil
}

func (a *AuthInterceptor) checkVehicle(msg any) error {
	if len(a.vehicles) == 0 {
		return nil
	}
	scoped, ok := msg.(VehicleScoped)
	if !ok {
		return nil
	}
	if _, ok := a.vehicles[scoped.VehicleKey()]; !ok {
		return connect.NewError(connect.CodePermissionDenied, errVehicle)
	}
	return nil
}

func (a *AuthInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		if err := a.checkKey(req.Header().Get(APIKeyHeader)); err != nil {
			return nil, err
		}
		if err := a.checkVehicle(req.Any()); err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (a *AuthInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (a *AuthInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if err := a.checkKey(conn.RequestHeader().Get(APIKeyHeader)); err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

// WithAPIKey 客户端拦截器，为每个请求附加X-Api-Key
func WithAPIKey(key string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if key != "" && req.Spec().IsClient {
				req.Header().Set(APIKeyHeader, key)
			}
			return next(ctx, req)
		}
	}
}
