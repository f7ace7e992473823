// Package scan is the entry point for courier and receiving-desk QR scans. It
// turns a scanned code into a batch number and drives the batch machine.
package scan

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/angelmondragon/repairhub-backend/internal/authz"
	"github.com/angelmondragon/repairhub-backend/internal/logistics"
	pkgerrors "github.com/angelmondragon/repairhub-backend/pkg/errors"
)

const batchNoParam = "batchNo"

type batchMachine interface {
	Pickup(ctx context.Context, actor authz.Actor, batchNo string) (*logistics.BatchView, error)
	Receive(ctx context.Context, actor authz.Actor, batchNo string) (*logistics.ReceiveResult, error)
	Get(ctx context.Context, actor authz.Actor, batchNo string) (*logistics.BatchView, error)
}

// Service resolves scanned codes and applies pickup or receipt.
type Service interface {
	Preview(ctx context.Context, actor authz.Actor, code string) (*logistics.BatchView, error)
	Pickup(ctx context.Context, actor authz.Actor, code string) (*logistics.BatchView, error)
	Receive(ctx context.Context, actor authz.Actor, code string) (*logistics.ReceiveResult, error)
}

type service struct {
	batches batchMachine
}

func NewService(batches batchMachine) (Service, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch machine required")
	}
	return &service{batches: batches}, nil
}

func (s *service) Preview(ctx context.Context, actor authz.Actor, code string) (*logistics.BatchView, error) {
	batchNo, err := ParseBatchCode(code)
	if err != nil {
		return nil, err
	}
	return s.batches.Get(ctx, actor, batchNo)
}

func (s *service) Pickup(ctx context.Context, actor authz.Actor, code string) (*logistics.BatchView, error) {
	batchNo, err := ParseBatchCode(code)
	if err != nil {
		return nil, err
	}
	return s.batches.Pickup(ctx, actor, batchNo)
}

func (s *service) Receive(ctx context.Context, actor authz.Actor, code string) (*logistics.ReceiveResult, error) {
	batchNo, err := ParseBatchCode(code)
	if err != nil {
		return nil, err
	}
	return s.batches.Receive(ctx, actor, batchNo)
}

// ParseBatchCode accepts either a bare batch number or a link carrying it in
// the batchNo query parameter, as printed on transport labels.
func ParseBatchCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "batch code is required")
	}
	if strings.Contains(code, batchNoParam+"=") {
		parsed, err := url.Parse(code)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid batch code").
				WithDetails(map[string]any{"code": code})
		}
		if v := strings.TrimSpace(parsed.Query().Get(batchNoParam)); v != "" {
			code = v
		}
	}
	if strings.ContainsAny(code, " /?&=") {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid batch code").
			WithDetails(map[string]any{"code": code})
	}
	return strings.ToUpper(code), nil
}
