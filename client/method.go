package client

// Method is an HTTP request method.
type Method string

const (
	GET       Method = "GET"
	POST      Method = "POST"
	PUT       Method = "PUT"
	DELETE    Method = "DELETE"
	PATCH     Method = "PATCH"
	UPDATE    Method = "UPDATE"
	HEAD      Method = "HEAD"
	TRACE     Method = "TRACE"
	OPTIONS   Method = "OPTIONS"
	CONNECT   Method = "CONNECT"
	SEARCH    Method = "SEARCH"
	COPY      Method = "COPY"
	MERGE     Method = "MERGE"
	LABEL     Method = "LABEL"
	LOCK      Method = "LOCK"
	UNLOCK    Method = "UNLOCK"
	MOVE      Method = "MOVE"
	MKCOL     Method = "MKCOL"
	PROPFIND  Method = "PROPFIND"
	PROPPATCH Method = "PROPPATCH"
)

// HasBody reports whether the method carries a serialized payload.
func (m Method) HasBody() bool {
	switch m {
	case POST, PUT, PATCH, DELETE, UPDATE:
		return true
	default:
		return false
	}
}

func (m Method) String() string { return string(m) }

// Placement decides where query items travel.
type Placement int

const (
	// PlaceAuto sends query items in the body when the merged headers are
	// form-url-encoded, and in the URL otherwise.
	PlaceAuto Placement = iota
	// PlaceURL always appends query items to the URL.
	PlaceURL
	// PlaceBody always form-encodes query items into the body.
	PlaceBody
)

func (p Placement) String() string {
	switch p {
	case PlaceAuto:
		return "auto"
	case PlaceURL:
		return "url"
	case PlaceBody:
		return "body"
	default:
		return "unknown"
	}
}
