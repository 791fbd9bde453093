package gateway

import (
	"context"
	"reflect"
	"strings"
	"unicode"
)

// Phase is a lifecycle phase of a dispatched call.
type Phase string

const (
	PhaseStart   Phase = "start"
	PhaseSuccess Phase = "success"
	PhaseError   Phase = "error"
)

// Action is the notification envelope delivered to a Dispatch function.
type Action struct {
	// Type is ActionType(OperationID, Phase).
	Type        string
	Phase       Phase
	OperationID string
	// Payload is the call input on start and the decoded result on success.
	Payload any
	// Err is set on the error phase only.
	Err error
}

// Dispatch receives lifecycle notifications.
type Dispatch func(Action)

// Thunk is a deferred call that reports its lifecycle to dispatch.
type Thunk[T any] func(ctx context.Context, dispatch Dispatch) (T, error)

// ActionType returns the stable notification type for an operation phase,
// e.g. "GET_PET_BY_ID_SUCCESS".
func ActionType(operationID string, phase Phase) string {
	return ActionPrefix(operationID) + "_" + strings.ToUpper(string(phase))
}

// ActionPrefix converts an operation id to UPPER_SNAKE_CASE.
func ActionPrefix(operationID string) string {
	runes := []rune(operationID)
	var b strings.Builder
	sep := true
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			if !sep {
				b.WriteByte('_')
				sep = true
			}
			continue
		}
		if unicode.IsUpper(r) && i > 0 && !sep {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
		sep = false
	}
	return strings.TrimRight(b.String(), "_")
}

// CallWithDispatch executes op like Call and reports exactly one start
// notification followed by exactly one success or error notification.
func (g *Gateway) CallWithDispatch(ctx context.Context, dispatch Dispatch, op Operation, params Params, out any) error {
	cfg := g.snapshot()
	if dispatch == nil {
		dispatch = cfg.Dispatch
	}
	if dispatch == nil {
		return g.call(ctx, cfg, op, params, out)
	}
	return g.dispatchCall(ctx, cfg, dispatch, op, params, out)
}

func (g *Gateway) dispatchCall(ctx context.Context, cfg Config, dispatch Dispatch, op Operation, params Params, out any) error {
	dispatch(Action{
		Type:        ActionType(op.ID, PhaseStart),
		Phase:       PhaseStart,
		OperationID: op.ID,
		Payload:     params,
	})
	if err := g.call(ctx, cfg, op, params, out); err != nil {
		dispatch(Action{
			Type:        ActionType(op.ID, PhaseError),
			Phase:       PhaseError,
			OperationID: op.ID,
			Err:         err,
		})
		return err
	}
	dispatch(Action{
		Type:        ActionType(op.ID, PhaseSuccess),
		Phase:       PhaseSuccess,
		OperationID: op.ID,
		Payload:     payloadOf(out),
	})
	return nil
}

func payloadOf(out any) any {
	if out == nil {
		return nil
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		return rv.Elem().Interface()
	}
	return out
}

// Do executes op and returns the decoded result.
func Do[T any](ctx context.Context, g *Gateway, op Operation, params Params) (T, error) {
	var out T
	if err := g.Call(ctx, op, params, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Invoke returns a thunk executing op. A nil dispatch passed to the thunk
// falls back to the configured one.
func Invoke[T any](g *Gateway, op Operation, params Params) Thunk[T] {
	return func(ctx context.Context, dispatch Dispatch) (T, error) {
		var out T
		if err := g.CallWithDispatch(ctx, dispatch, op, params, &out); err != nil {
			var zero T
			return zero, err
		}
		return out, nil
	}
}
