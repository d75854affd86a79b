package wire

import (
	"net/url"
	"strings"
)

// Protocol identification.
const (
	// ProtocolVersion is the TLCP version spoken by this client.
	ProtocolVersion = "TLCP-2.5.0"

	// WSSubprotocol is the WebSocket subprotocol negotiated on upgrade.
	WSSubprotocol = "TLCP-2.5.0.lightstreamer.com"
)

// Request names (first line of a client request).
const (
	RequestWSOK          = "wsok"
	RequestCreateSession = "create_session"
	RequestBindSession   = "bind_session"
	RequestControl       = "control"
	RequestHeartbeat     = "heartbeat"
)

// Param is one key=value pair of a request.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered list of request parameters. Order is preserved on
// the wire so requests are reproducible byte for byte.
type Params []Param

// Add appends a parameter.
func (p *Params) Add(key, value string) {
	*p = append(*p, Param{Key: key, Value: value})
}

// Set replaces the first parameter with the given key, or appends it.
func (p *Params) Set(key, value string) {
	for i := range *p {
		if (*p)[i].Key == key {
			(*p)[i].Value = value
			return
		}
	}
	p.Add(key, value)
}

// Get returns the value of the first parameter with the given key.
func (p Params) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Clone returns a copy that can be modified independently.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	copy(out, p)
	return out
}

// Encode renders the parameters as a percent-encoded, '&' joined string.
func (p Params) Encode() string {
	var b strings.Builder
	for i, kv := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(kv.Key)
		b.WriteByte('=')
		b.WriteString(EncodeValue(kv.Value))
	}
	return b.String()
}

// EncodeRequest renders a request for a stream connection (WebSocket): the
// request name, CRLF, and the encoded parameters.
func EncodeRequest(name string, params Params) string {
	if len(params) == 0 {
		return name
	}
	return name + "\r\n" + params.Encode()
}

// HTTPPath returns the path and query used to send the named request over
// HTTP, e.g. "create_session.txt?LS_protocol=TLCP-2.5.0".
func HTTPPath(name string) string {
	return name + ".txt?LS_protocol=" + ProtocolVersion
}

// EncodeValue percent-encodes a parameter value. Spaces become %20 so the
// result never contains '+', '&', '=' or line breaks.
func EncodeValue(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// DecodeValue decodes a percent-encoded value. Hex digits may be of either
// case and escapes may form multi-byte UTF-8 sequences. '+' is literal.
func DecodeValue(s string) (string, error) {
	if strings.IndexByte(s, '%') < 0 {
		return s, nil
	}
	return url.PathUnescape(s)
}
