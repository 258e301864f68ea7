package metrics

// CounterKeyST enumerates single-threaded counter slots: written only from
// the reactor thread and stored directly in the global totals.
type CounterKeyST int

const (
	CounterBytesReceived CounterKeyST = iota
	CounterBytesSent
	CounterSocketErrorTotal
	CounterSocketErrorECONNRESET
	CounterSocketErrorETIMEDOUT
	CounterSocketErrorEPIPE
	CounterSocketErrorENETDOWN
	CounterSocketErrorOther
	CounterAcceptErrorEMFILE
	CounterAcceptErrorENFILE
	CounterAcceptErrorENOBUFS
	CounterAcceptErrorOther
	numCounterKeysST
)

var counterSTNames = [numCounterKeysST]string{
	CounterBytesReceived:         "net.bytes_received",
	CounterBytesSent:             "net.bytes_sent",
	CounterSocketErrorTotal:      "net.socket_error.total",
	CounterSocketErrorECONNRESET: "net.socket_error.econnreset",
	CounterSocketErrorETIMEDOUT:  "net.socket_error.etimedout",
	CounterSocketErrorEPIPE:      "net.socket_error.epipe",
	CounterSocketErrorENETDOWN:   "net.socket_error.enetdown",
	CounterSocketErrorOther:      "net.socket_error.other",
	CounterAcceptErrorEMFILE:     "net.accept_error.emfile",
	CounterAcceptErrorENFILE:     "net.accept_error.enfile",
	CounterAcceptErrorENOBUFS:    "net.accept_error.enobufs",
	CounterAcceptErrorOther:      "net.accept_error.other",
}

// String returns the stable dashboard key name for k.
func (k CounterKeyST) String() string { return counterSTNames[k] }

// GaugeKeyST enumerates single-threaded additive gauge slots.
type GaugeKeyST int

const (
	// GaugeActiveChannels tracks the reactor's live channel count.
	GaugeActiveChannels GaugeKeyST = iota
	numGaugeKeysST
)

var gaugeSTNames = [numGaugeKeysST]string{
	GaugeActiveChannels: "net.active_channels",
}

func (k GaugeKeyST) String() string { return gaugeSTNames[k] }

// CounterKeyMT enumerates multi-threaded counter slots: writable from any
// thread, accumulated in a per-shard slice and folded into the global
// total. This core has no storage workers yet, so these keys are reserved
// for the future storage engine that will share this metrics subsystem.
type CounterKeyMT int

const (
	CounterStorageOpsTotal CounterKeyMT = iota
	numCounterKeysMT
)

var counterMTNames = [numCounterKeysMT]string{
	CounterStorageOpsTotal: "storage.ops_total",
}

func (k CounterKeyMT) String() string { return counterMTNames[k] }

// GaugeKeyMT enumerates multi-threaded additive gauge slots.
type GaugeKeyMT int

const (
	GaugeStorageQueueDepth GaugeKeyMT = iota
	numGaugeKeysMT
)

var gaugeMTNames = [numGaugeKeysMT]string{
	GaugeStorageQueueDepth: "storage.queue_depth",
}

func (k GaugeKeyMT) String() string { return gaugeMTNames[k] }
