// Package protocol describes network protocol headers as ordered sets of
// bit fields and keeps a registry of the known descriptors.
//
// A descriptor only knows its own header. Behaviour that involves the
// surrounding layers is exposed through small optional interfaces that the
// packet codec discovers with type assertions.
package protocol

// Protocol is a protocol descriptor. Descriptors are immutable values.
type Protocol interface {
	// Name returns the unique protocol name (e.g., "ipv4", "udp").
	Name() string

	// ID returns the IANA protocol number used for demultiplexing.
	ID() uint8

	// Fields returns the header fields in declaration order.
	Fields() []Field

	// HeaderLen returns the fixed header length in bytes.
	HeaderLen() int

	// HeaderSize returns the actual header length of hdr, which may exceed
	// HeaderLen when the header carries options.
	HeaderSize(hdr []byte) (int, error)

	// WriteDefaultHeader fills hdr (HeaderLen bytes) with default values.
	WriteDefaultHeader(hdr []byte)

	// InstanceOf reports whether b plausibly starts with this header.
	InstanceOf(b []byte) bool
}

// Finalizer gets a last chance to adjust a header once the whole segment
// (header plus everything after it) is in place.
type Finalizer interface {
	Finalize(segment []byte) error
}

// Checksummer computes and stores the header checksum. Protocols that need
// an external checksum receive the pseudo-header of the enclosing network
// layer; the others receive nil.
type Checksummer interface {
	NeedsExternalChecksum() bool
	WriteChecksum(segment, pseudo []byte) error
}

// PseudoHeaderer is implemented by network layers that build the
// pseudo-header used by transport checksums.
type PseudoHeaderer interface {
	PseudoHeader(hdr []byte, next uint8, length int) ([]byte, error)
}

// Demuxer reports the id of the protocol carried after hdr. ok is false when
// nothing parseable follows.
type Demuxer interface {
	NextProtocol(hdr []byte) (id uint8, ok bool)
}

// Linker stores the id of the protocol carried after hdr.
type Linker interface {
	SetNextProtocol(hdr []byte, id uint8) error
}

// FieldByName returns the field of p called name.
func FieldByName(p Protocol, name string) (Field, bool) {
	for _, f := range p.Fields() {
		if f.Key == name {
			return f, true
		}
	}
	return Field{}, false
}

// IterFields calls visit for every field of p in declaration order.
func IterFields(p Protocol, visit func(Field)) {
	for _, f := range p.Fields() {
		visit(f)
	}
}

// header is embedded by the built-in descriptors.
type header struct {
	name   string
	id     uint8
	length int
	fields []Field
}

func (h *header) Name() string { return h.name }
func (h *header) ID() uint8 { return h.id }
func (h *header) Fields() []Field { return h.fields }
func (h *header) HeaderLen() int { return h.length }
func (h *header) String() string { return h.name }

func (h *header) field(key string) Field {
	for _, f := range h.fields {
		if f.Key == key {
			return f
		}
	}
	panic("protocol: " + h.name + " has no field " + key)
}

func (h *header) HeaderSize(hdr []byte) (int, error) {
	return h.length, nil
}

func (h *header) WriteDefaultHeader(hdr []byte) {
	clear(hdr[:h.length])
	writeDefaults(hdr, h.fields)
}
