package handling

import (
	"context"
	"errors"
	"testing"
)

func TestPlainLifecycleControllerRunsImmediately(t *testing.T) {
	var ran bool
	err := PlainLifecycleController{}.Run(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if !ran {
		t.Fatal("PlainLifecycleController never invoked run")
	}
}

func TestPlainLifecycleControllerPropagatesRunError(t *testing.T) {
	wantErr := errors.New("boom")
	err := PlainLifecycleController{}.Run(context.Background(), func(ctx context.Context) error {
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("Run() = %v, want %v", err, wantErr)
	}
}

func TestPlainLifecycleControllerPassesThroughContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var observedErr error
	PlainLifecycleController{}.Run(ctx, func(ctx context.Context) error {
		observedErr = ctx.Err()
		return nil
	})
	if observedErr == nil {
		t.Fatal("run should observe the cancelled context")
	}
}
