package companion

import "time"

// Observer 连接级观测回调（指标），实现不得阻塞
type Observer interface {
	ObserveFrame(direction string, size int)
	ObserveDrop(reason string)
	ObserveEvent(kind string)
	ObserveDecodeError(reason string)
	ObserveCall(command, result string, elapsed time.Duration)
	ObserveLink(up bool)
}

type nopObserver struct{}

func (nopObserver) ObserveFrame(string, int)                  {}
func (nopObserver) ObserveDrop(string)                        {}
func (nopObserver) ObserveEvent(string)                       {}
func (nopObserver) ObserveDecodeError(string)                 {}
func (nopObserver) ObserveCall(string, string, time.Duration) {}
func (nopObserver) ObserveLink(bool)                          {}

// NopObserver 不做任何记录
func NopObserver() Observer { return nopObserver{} }
