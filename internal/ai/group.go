package ai

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type GroupEntry struct {
	Provider IProvider
	// Model overrides the model requested by the caller when set.
	Model string
}

type groupProvider struct {
	items []GroupEntry
}

// NewGroupProvider tries each entry in order until one succeeds.
func NewGroupProvider(items []GroupEntry) IProvider {
	if len(items) == 0 {
		return nil
	}
	if len(items) == 1 && items[0].Model == "" {
		return items[0].Provider
	}
	return &groupProvider{items: items}
}

func (g *groupProvider) Name() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		if item.Provider == nil {
			continue
		}
		names = append(names, item.Provider.Name())
	}
	return strings.Join(names, "|")
}

func (g *groupProvider) Generate(ctx context.Context, model string, req *Request) (string, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Provider == nil {
			continue
		}
		use := model
		if item.Model != "" {
			use = item.Model
		}
		res, err := item.Provider.Generate(ctx, use, req)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("provider failed", zap.Int("index", i), zap.String("name", item.Provider.Name()), zap.String("model", use), zap.Error(err))
	}
	if lastErr == nil {
		return "", ErrUnavailable
	}
	return "", lastErr
}
