package gate

import (
	"github.com/liangmanlin/netsync/kernel"
	"github.com/liangmanlin/netsync/metrics"
)

type optFun func(o *optStruct)

type optStruct struct {
	isUseNbio bool
	acceptNum int
	head      int
	maxRead   int
	metrics   *metrics.Metrics
}

func parseOpt(opt []optFun) *optStruct {
	df := &optStruct{acceptNum: 10, head: 2}
	for _, f := range opt {
		f(df)
	}
	if df.metrics == nil {
		df.metrics = metrics.Nop()
	}
	return df
}

func WithAcceptNum(num int) optFun {
	return func(o *optStruct) {
		o.acceptNum = num
	}
}

// WithUseEpoll serves the connections from an nbio poller instead of one
// reading goroutine per socket
func WithUseEpoll() optFun {
	return func(o *optStruct) {
		o.isUseNbio = true
	}
}

func WithHead(head int) optFun {
	return func(o *optStruct) {
		o.head = head
	}
}

func WithMetrics(m *metrics.Metrics) optFun {
	return func(o *optStruct) {
		o.metrics = m
	}
}

// WithMaxRead bounds the body of an inbound frame, a larger head closes the
// connection
func WithMaxRead(n int) optFun {
	return func(o *optStruct) {
		o.maxRead = n
	}
}

// WithEnv applies the gate section of the config file
func WithEnv(env kernel.GateEnv) optFun {
	return func(o *optStruct) {
		o.head = env.Head
		o.isUseNbio = env.UseNbio
		o.maxRead = env.MaxRead
	}
}
