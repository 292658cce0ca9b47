package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rbright/steno/internal/audio"
)

const (
	// RecognizerService is the fully-qualified gRPC service name.
	RecognizerService = "steno.asr.v1.Recognizer"
	transcribeMethod  = "/" + RecognizerService + "/Transcribe"
)

// RecognizerServer is the server side of the recognizer service. Requests and
// responses are google.protobuf.Struct messages.
type RecognizerServer interface {
	Transcribe(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterRecognizerServer attaches srv to a gRPC server.
func RegisterRecognizerServer(s grpc.ServiceRegistrar, srv RecognizerServer) {
	s.RegisterService(&recognizerServiceDesc, srv)
}

var recognizerServiceDesc = grpc.ServiceDesc{
	ServiceName: RecognizerService,
	HandlerType: (*RecognizerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Transcribe", Handler: transcribeHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func transcribeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecognizerServer).Transcribe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: transcribeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RecognizerServer).Transcribe(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPC calls a remote recognizer over one long-lived connection.
type GRPC struct {
	cfg  Config
	conn *grpc.ClientConn
}

// NewGRPC connects and waits up to cfg.DialTimeout for the channel to be ready.
func NewGRPC(ctx context.Context, cfg Config) (*GRPC, error) {
	cfg = cfg.withDefaults()
	endpoint := strings.TrimSpace(cfg.Address)
	if endpoint == "" {
		return nil, errors.New("engine address is empty")
	}

	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial engine grpc %q: %w", endpoint, err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	conn.Connect()
	if err := waitForReady(readyCtx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wait for engine grpc readiness: %w", err)
	}
	return &GRPC{cfg: cfg, conn: conn}, nil
}

// Transcribe sends the chunk as base64 PCM16 inside a Struct request.
func (g *GRPC) Transcribe(ctx context.Context, req Request) ([]string, error) {
	in, err := structpb.NewStruct(map[string]any{
		"audio_pcm16": base64.StdEncoding.EncodeToString(audio.PCM16(req.Samples)),
		"sample_rate": req.SampleRate,
		"prompt":      req.Prompt,
		"model":       g.cfg.Model,
		"language":    g.cfg.Language,
		"translate":   g.cfg.Translate,
		"threads":     g.cfg.Threads,
		"temperature": g.cfg.Temperature,
		"max_tokens":  g.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("build transcribe request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	out := new(structpb.Struct)
	if err := g.conn.Invoke(callCtx, transcribeMethod, in, out); err != nil {
		return nil, fmt.Errorf("invoke %s: %w", transcribeMethod, err)
	}
	return segmentsFromStruct(out), nil
}

// segmentsFromStruct reads "segments" as strings or {"text": ...} objects,
// falling back to a top-level "text".
func segmentsFromStruct(out *structpb.Struct) []string {
	var segments []string
	list := out.GetFields()["segments"].GetListValue()
	for _, v := range list.GetValues() {
		switch kind := v.GetKind().(type) {
		case *structpb.Value_StringValue:
			segments = appendClean(segments, kind.StringValue)
		case *structpb.Value_StructValue:
			segments = appendClean(segments, kind.StructValue.GetFields()["text"].GetStringValue())
		}
	}
	if len(list.GetValues()) == 0 {
		segments = appendClean(segments, out.GetFields()["text"].GetStringValue())
	}
	return segments
}

// Ready queries the standard gRPC health service.
func (g *GRPC) Ready(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(g.conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("engine health: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("engine health: %s", resp.GetStatus())
	}
	return nil
}

// Close tears down the connection.
func (g *GRPC) Close() error {
	return g.conn.Close()
}

// waitForReady blocks until the connection is Ready or ctx expires.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state)
		}
	}
}
