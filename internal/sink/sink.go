package sink

import (
	"context"
)

// Sink 事件投递目标
type Sink interface {
	Name() string
	Deliver(ctx context.Context, env *Envelope) error
	Close() error
}

// Observer 投递结果观测
type Observer interface {
	ObserveDelivery(sink, result string)
	ObserveOverflow()
}

type nopObserver struct{}

func (nopObserver) ObserveDelivery(string, string) {}
func (nopObserver) ObserveOverflow()               {}

// KindFilter 仅投递指定事件类型的包装
type KindFilter struct {
	Sink
	kinds map[string]struct{}
}

// OnlyKinds 包装 s；kinds 为空时不过滤
func OnlyKinds(s Sink, kinds ...string) Sink {
	if len(kinds) == 0 {
		return s
	}
	f := &KindFilter{Sink: s, kinds: make(map[string]struct{}, len(kinds))}
	for _, k := range kinds {
		f.kinds[k] = struct{}{}
	}
	return f
}

func (f *KindFilter) Deliver(ctx context.Context, env *Envelope) error {
	if _, ok := f.kinds[env.Kind]; !ok {
		return nil
	}
	return f.Sink.Deliver(ctx, env)
}
