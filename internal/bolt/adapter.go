package bolt

import (
	"fmt"

	"github.com/graphwire/bolt-go-driver/packstream"
)

// TxMetadata carries the options a BEGIN (or an auto-commit RUN treated as
// an implicit transaction) may attach. Fields a given
// adapter does not understand are rejected before anything is written to
// the wire, never silently dropped.
type TxMetadata struct {
	Bookmarks    []string
	TxTimeoutMs  *int64
	TxMetadata   map[string]any
	Mode         string // "r" for read, "" (omitted) for write
	Database     string
	ImpersonatedUser string
}

// unsupportedOption reports a caller asking for something the negotiated
// protocol version cannot express.
func unsupportedOption(version Version, option string) error {
	return fmt.Errorf("bolt: protocol %d.%d does not support %s", version.Major, version.Minor, option)
}

// Adapter encodes the request side of the wire for one negotiated protocol
// version and normalises response metadata keys so upstream layers see a
// single vocabulary regardless of which version is in play.
type Adapter struct {
	version Version

	hasHello     bool // V3+: HELLO/BEGIN/COMMIT/ROLLBACK/GOODBYE exist
	hasPullN     bool // V4+: PULL/DISCARD take {n, qid}
	hasDatabase  bool // V4+: begin/run extras may carry "db"
	hasRouting   bool // V4.1+: hello extra carries routing context
	hasRouteMsg  bool // V4.3+: ROUTE message exists
}

func NewV1Adapter() *Adapter {
	return &Adapter{version: Version{Major: 1}}
}

func NewV2Adapter() *Adapter {
	return &Adapter{version: Version{Major: 2}}
}

func NewV3Adapter() *Adapter {
	return &Adapter{version: Version{Major: 3}, hasHello: true}
}

func NewV4Adapter(minor byte) *Adapter {
	return &Adapter{
		version:     Version{Major: 4, Minor: minor},
		hasHello:    true,
		hasPullN:    true,
		hasDatabase: true,
		hasRouting:  minor >= 1,
		hasRouteMsg: minor >= 3,
	}
}

// NewAdapter picks the adapter matching a negotiated version.
func NewAdapter(v Version) (*Adapter, error) {
	switch {
	case v.Major == 1:
		return NewV1Adapter(), nil
	case v.Major == 2:
		return NewV2Adapter(), nil
	case v.Major == 3:
		return NewV3Adapter(), nil
	case v.Major == 4:
		return NewV4Adapter(v.Minor), nil
	default:
		return nil, fmt.Errorf("bolt: unsupported negotiated protocol version %d.%d", v.Major, v.Minor)
	}
}

func (a *Adapter) Version() Version { return a.version }

// RegisterStructMappers installs the caller-supplied extra mappers on u.
// No protocol version registers mappers of its own, so with an empty extra
// this is a no-op and spatial or temporal values decode as opaque
// packstream.Struct values.
func (a *Adapter) RegisterStructMappers(u *packstream.Unpacker, extra map[byte]packstream.StructMapper) {
	for sig, m := range extra {
		u.RegisterStructMapper(sig, m)
	}
}

// EncodeHello builds the init/hello message. authToken typically carries
// scheme/principal/credentials.
func (a *Adapter) EncodeHello(userAgent string, authToken map[string]any, routingContext map[string]string) (*Message, error) {
	if !a.hasHello {
		extra := map[string]any{}
		for k, v := range authToken {
			extra[k] = v
		}
		extra["user_agent"] = userAgent
		return NewMessage(SigInit, userAgent, extra), nil
	}
	extra := map[string]any{"user_agent": userAgent}
	for k, v := range authToken {
		extra[k] = v
	}
	if len(routingContext) > 0 {
		if !a.hasRouting {
			return nil, unsupportedOption(a.version, "routing context in hello")
		}
		rc := make(map[string]any, len(routingContext))
		for k, v := range routingContext {
			rc[k] = v
		}
		extra["routing"] = rc
	}
	return NewMessage(SigHello, extra), nil
}

func (a *Adapter) EncodeGoodbye() (*Message, bool) {
	if !a.hasHello {
		return nil, false
	}
	return NewMessage(SigGoodbye), true
}

// EncodeRun builds the RUN message (and, on V1-V3, the PULL_ALL that must
// follow it in the same pipelined batch). V4+ callers issue RUN and a
// separate PULL/DISCARD via EncodePull/EncodeDiscard.
func (a *Adapter) EncodeRun(statement string, params map[string]any, tx TxMetadata) ([]*Message, error) {
	if params == nil {
		params = map[string]any{}
	}
	extra, err := a.runExtra(tx)
	if err != nil {
		return nil, err
	}
	run := NewMessage(SigRun, statement, params, extra)
	if a.hasPullN {
		return []*Message{run}, nil
	}
	return []*Message{run, NewMessage(SigPullAll)}, nil
}

func (a *Adapter) runExtra(tx TxMetadata) (map[string]any, error) {
	extra := map[string]any{}
	if len(tx.Bookmarks) > 0 {
		extra["bookmarks"] = bookmarksToAny(tx.Bookmarks)
	}
	if tx.TxTimeoutMs != nil {
		if !a.hasHello {
			return nil, unsupportedOption(a.version, "tx_timeout")
		}
		extra["tx_timeout"] = *tx.TxTimeoutMs
	}
	if len(tx.TxMetadata) > 0 {
		if !a.hasHello {
			return nil, unsupportedOption(a.version, "tx_metadata")
		}
		extra["tx_metadata"] = tx.TxMetadata
	}
	if tx.Mode == "r" {
		if !a.hasHello {
			return nil, unsupportedOption(a.version, "mode")
		}
		extra["mode"] = "r"
	}
	if tx.Database != "" {
		if !a.hasDatabase {
			return nil, unsupportedOption(a.version, "database selection")
		}
		extra["db"] = tx.Database
	}
	if tx.ImpersonatedUser != "" {
		if !a.hasDatabase {
			return nil, unsupportedOption(a.version, "impersonated user")
		}
		extra["imp_user"] = tx.ImpersonatedUser
	}
	return extra, nil
}

func bookmarksToAny(bookmarks []string) []any {
	out := make([]any, len(bookmarks))
	for i, b := range bookmarks {
		out[i] = b
	}
	return out
}

// EncodePull builds PULL_ALL (V1-V3, n and qid ignored) or PULL{n, qid}
// (V4+; n<0 means "all", qid<0 means "the last open result").
func (a *Adapter) EncodePull(n int64, qid int64) *Message {
	if !a.hasPullN {
		return NewMessage(SigPullAll)
	}
	extra := map[string]any{"n": n}
	if qid >= 0 {
		extra["qid"] = qid
	}
	return NewMessage(SigPull, extra)
}

// EncodeDiscard builds DISCARD_ALL (V1-V3) or DISCARD{n, qid} (V4+).
func (a *Adapter) EncodeDiscard(n int64, qid int64) *Message {
	if !a.hasPullN {
		return NewMessage(SigDiscardAll)
	}
	extra := map[string]any{"n": n}
	if qid >= 0 {
		extra["qid"] = qid
	}
	return NewMessage(SigDiscard, extra)
}

// EncodeBegin builds BEGIN(extra) on V3+. V1/V2 model transactions as
// run("BEGIN", bookmarks) + pull_all; callers on those versions should use
// EncodeRun with the literal "BEGIN" statement instead of calling this.
func (a *Adapter) EncodeBegin(tx TxMetadata) (*Message, error) {
	if !a.hasHello {
		return nil, unsupportedOption(a.version, "explicit BEGIN message")
	}
	extra, err := a.runExtra(tx)
	if err != nil {
		return nil, err
	}
	return NewMessage(SigBegin, extra), nil
}

func (a *Adapter) EncodeCommit() (*Message, error) {
	if !a.hasHello {
		return nil, unsupportedOption(a.version, "explicit COMMIT message")
	}
	return NewMessage(SigCommit), nil
}

func (a *Adapter) EncodeRollback() (*Message, error) {
	if !a.hasHello {
		return nil, unsupportedOption(a.version, "explicit ROLLBACK message")
	}
	return NewMessage(SigRollback), nil
}

// EncodeResetOrAck builds the single acknowledgement message appropriate
// to this version: RESET on V3+, ACK_FAILURE before it.
func (a *Adapter) EncodeResetOrAck() *Message {
	if a.hasHello {
		return NewMessage(SigReset)
	}
	return NewMessage(SigAckFailure)
}

// EncodeRoute builds the V4.3+ ROUTE message, the wire-native alternative
// to calling the routing procedure as an ordinary query.
func (a *Adapter) EncodeRoute(routingContext map[string]string, bookmarks []string, database string) (*Message, error) {
	if !a.hasRouteMsg {
		return nil, unsupportedOption(a.version, "ROUTE message")
	}
	rc := make(map[string]any, len(routingContext))
	for k, v := range routingContext {
		rc[k] = v
	}
	var db any
	if database != "" {
		db = database
	}
	return NewMessage(SigRoute, rc, bookmarksToAny(bookmarks), db), nil
}

// NormalizeMetadata renames version-specific metadata keys to a single
// vocabulary: V3+ renames t_first/t_last to result_available_after /
// result_consumed_after.
func (a *Adapter) NormalizeMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	if tFirst, ok := out["t_first"]; ok {
		out["result_available_after"] = tFirst
		delete(out, "t_first")
	}
	if tLast, ok := out["t_last"]; ok {
		out["result_consumed_after"] = tLast
		delete(out, "t_last")
	}
	return out
}
