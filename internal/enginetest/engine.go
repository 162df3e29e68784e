// Package enginetest provides a deterministic in-memory stand-in for
// the external cryptographic engine, for use in tests. Its "key
// material" is tagged byte strings and its cipher is an XOR
// keystream: enough to verify serialization plumbing, archive round
// trips and operational equivalence, with no real cryptography.
package enginetest

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/proxyre/prebundle/engine"
)

// Engine error codes used by the fake.
const (
	CodeBadBuffer      = 101
	CodeFormatMismatch = 102
	CodeNotInitialized = 103
)

var codeMessages = map[int]string{
	CodeBadBuffer:      "buffer does not hold an object of the expected kind",
	CodeFormatMismatch: "buffer was serialized in a different format",
	CodeNotInitialized: "engine state required by this operation is not loaded",
}

type object struct {
	kind     string
	material []byte
}

type pair struct {
	refresh   []byte
	switching []byte
}

// Engine is the fake engine. Create a populated one with New, or an
// empty one with NewEmpty as a restore target. Exported knobs let
// tests inject specific failures.
type Engine struct {
	context      []byte
	publicKey    []byte
	secretKey    []byte
	multKey      []byte
	rotationKeys []byte
	switchKey    []byte

	secondary        []byte
	primaryRefresh   []byte
	primarySwitching []byte
	bound            bool

	pairs     map[int]pair
	pairOrder []int

	// EmptyArtifact names an artifact whose serialize call returns an
	// empty buffer, simulating an engine that never produced it.
	EmptyArtifact string

	// RejectArtifact names an artifact whose deserialize call fails
	// with RejectCode, simulating engine-encoded failure identifiers.
	RejectArtifact string
	RejectCode     int
}

// New creates a fully-initialized fake engine whose key material is
// derived from seed. The same seed always yields the same state.
// Bootstrap pairs are created for the given indices, in order.
func New(seed string, indices ...int) *Engine {
	e := &Engine{
		context:          material(seed, "context"),
		publicKey:        material(seed, "publicKey"),
		secretKey:        material(seed, "secretKey"),
		multKey:          material(seed, "multKey"),
		rotationKeys:     material(seed, "rotationKeys"),
		switchKey:        material(seed, "switchKey"),
		secondary:        material(seed, "secondary"),
		primaryRefresh:   material(seed, "primaryRefresh"),
		primarySwitching: material(seed, "primarySwitching"),
		bound:            true,
		pairs:            make(map[int]pair),
	}
	for _, index := range indices {
		e.pairs[index] = pair{
			refresh:   material(seed, fmt.Sprintf("refresh-%d", index)),
			switching: material(seed, fmt.Sprintf("switching-%d", index)),
		}
		e.pairOrder = append(e.pairOrder, index)
	}
	return e
}

// NewEmpty creates an uninitialized engine, the target of a restore.
func NewEmpty() *Engine {
	return &Engine{pairs: make(map[int]pair)}
}

func material(seed, kind string) []byte {
	return []byte("material/" + kind + "/" + seed)
}

// Fingerprint summarizes the whole engine state, for comparing a
// restored engine against the original.
func (e *Engine) Fingerprint() string {
	h := sha256.New()
	for _, m := range [][]byte{
		e.context, e.publicKey, e.secretKey, e.multKey, e.rotationKeys,
		e.switchKey, e.secondary, e.primaryRefresh, e.primarySwitching,
	} {
		h.Write(m)
		h.Write([]byte{0})
	}
	for _, index := range e.pairOrder {
		p := e.pairs[index]
		fmt.Fprintf(h, "%d:", index)
		h.Write(p.refresh)
		h.Write(p.switching)
	}
	fmt.Fprintf(h, "bound=%v", e.bound)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Bound reports whether the secondary context has been bound onto
// the primary one.
func (e *Engine) Bound() bool { return e.bound }

// HasEvalKeys reports whether the optional evaluation keys are loaded.
func (e *Engine) HasEvalKeys() bool { return e.multKey != nil && e.rotationKeys != nil }

func (e *Engine) wrap(artifact string, m []byte, f engine.Format) ([]byte, error) {
	if artifact == e.EmptyArtifact {
		return nil, nil
	}
	if m == nil {
		return nil, nil
	}
	return append([]byte(f.String()+"|"+artifact+"|"), m...), nil
}

func (e *Engine) unwrap(artifact string, buf []byte, f engine.Format) ([]byte, error) {
	if artifact == e.RejectArtifact {
		code := e.RejectCode
		if code == 0 {
			code = CodeBadBuffer
		}
		return nil, &engine.CodeError{Code: code}
	}
	prefix := []byte(f.String() + "|" + artifact + "|")
	if !bytes.HasPrefix(buf, prefix) {
		if bytes.Contains(buf, []byte("|"+artifact+"|")) {
			return nil, &engine.CodeError{Code: CodeFormatMismatch}
		}
		return nil, &engine.CodeError{Code: CodeBadBuffer}
	}
	return buf[len(prefix):], nil
}

func (e *Engine) SerializeContext(f engine.Format) ([]byte, error) {
	return e.wrap("context", e.context, f)
}

func (e *Engine) SerializePublicKey(f engine.Format) ([]byte, error) {
	return e.wrap("publicKey", e.publicKey, f)
}

func (e *Engine) SerializeSecretKey(f engine.Format) ([]byte, error) {
	return e.wrap("secretKey", e.secretKey, f)
}

func (e *Engine) SerializeMultKey(f engine.Format) ([]byte, error) {
	return e.wrap("multKey", e.multKey, f)
}

func (e *Engine) SerializeRotationKeys(f engine.Format) ([]byte, error) {
	return e.wrap("rotationKeys", e.rotationKeys, f)
}

func (e *Engine) SerializeSwitchKey(f engine.Format) ([]byte, error) {
	return e.wrap("switchKey", e.switchKey, f)
}

func (e *Engine) SerializeSecondaryContext(f engine.Format) ([]byte, error) {
	return e.wrap("secondary", e.secondary, f)
}

func (e *Engine) SerializeRefreshKey(obj engine.Object, f engine.Format) ([]byte, error) {
	o, err := e.asObject(obj, "refresh")
	if err != nil {
		return nil, err
	}
	return e.wrap("refresh", o.material, f)
}

func (e *Engine) SerializeSwitchingKey(obj engine.Object, f engine.Format) ([]byte, error) {
	o, err := e.asObject(obj, "switching")
	if err != nil {
		return nil, err
	}
	return e.wrap("switching", o.material, f)
}

func (e *Engine) SerializeIndexList(indices []int, f engine.Format) ([]byte, error) {
	if indices == nil {
		indices = []int{}
	}
	data, err := json.Marshal(indices)
	if err != nil {
		return nil, err
	}
	return e.wrap("indexList", data, f)
}

func (e *Engine) DeserializeContext(buf []byte, f engine.Format) error {
	m, err := e.unwrap("context", buf, f)
	if err != nil {
		return err
	}
	e.context = m
	return nil
}

func (e *Engine) DeserializePublicKey(buf []byte, f engine.Format) error {
	m, err := e.unwrap("publicKey", buf, f)
	if err != nil {
		return err
	}
	e.publicKey = m
	return nil
}

func (e *Engine) DeserializeSecretKey(buf []byte, f engine.Format) error {
	m, err := e.unwrap("secretKey", buf, f)
	if err != nil {
		return err
	}
	e.secretKey = m
	return nil
}

func (e *Engine) LoadMultKey(buf []byte, f engine.Format) error {
	m, err := e.unwrap("multKey", buf, f)
	if err != nil {
		return err
	}
	e.multKey = m
	return nil
}

func (e *Engine) LoadRotationKeys(buf []byte, f engine.Format) error {
	m, err := e.unwrap("rotationKeys", buf, f)
	if err != nil {
		return err
	}
	e.rotationKeys = m
	return nil
}

func (e *Engine) DeserializeSwitchKey(buf []byte, f engine.Format) error {
	m, err := e.unwrap("switchKey", buf, f)
	if err != nil {
		return err
	}
	e.switchKey = m
	return nil
}

func (e *Engine) DeserializeSecondaryContext(buf []byte, f engine.Format) error {
	if e.context == nil {
		return &engine.CodeError{Code: CodeNotInitialized}
	}
	m, err := e.unwrap("secondary", buf, f)
	if err != nil {
		return err
	}
	e.secondary = m
	return nil
}

func (e *Engine) DeserializeRefreshKey(buf []byte, f engine.Format) (engine.Object, error) {
	m, err := e.unwrap("refresh", buf, f)
	if err != nil {
		return nil, err
	}
	return &object{kind: "refresh", material: m}, nil
}

func (e *Engine) DeserializeSwitchingKey(buf []byte, f engine.Format) (engine.Object, error) {
	m, err := e.unwrap("switching", buf, f)
	if err != nil {
		return nil, err
	}
	return &object{kind: "switching", material: m}, nil
}

func (e *Engine) DeserializeIndexList(buf []byte, f engine.Format) ([]int, error) {
	m, err := e.unwrap("indexList", buf, f)
	if err != nil {
		return nil, err
	}
	var indices []int
	if err := json.Unmarshal(m, &indices); err != nil {
		return nil, &engine.CodeError{Code: CodeBadBuffer}
	}
	return indices, nil
}

func (e *Engine) BootstrapKeyCount() int {
	return len(e.pairOrder)
}

func (e *Engine) BootstrapKeyAt(i int) (engine.BootstrapEntry, error) {
	if i < 0 || i >= len(e.pairOrder) {
		return engine.BootstrapEntry{}, fmt.Errorf("bootstrap position %d out of range", i)
	}
	index := e.pairOrder[i]
	p := e.pairs[index]
	return engine.BootstrapEntry{
		Index:        index,
		RefreshKey:   &object{kind: "refresh", material: p.refresh},
		SwitchingKey: &object{kind: "switching", material: p.switching},
	}, nil
}

func (e *Engine) PrimaryBootstrapPair() (engine.Object, engine.Object, error) {
	if e.primaryRefresh == nil || e.primarySwitching == nil {
		return nil, nil, &engine.CodeError{Code: CodeNotInitialized}
	}
	return &object{kind: "refresh", material: e.primaryRefresh},
		&object{kind: "switching", material: e.primarySwitching}, nil
}

func (e *Engine) NewBootstrapKey(refresh, switching engine.Object) (engine.Object, error) {
	r, err := e.asObject(refresh, "refresh")
	if err != nil {
		return nil, err
	}
	s, err := e.asObject(switching, "switching")
	if err != nil {
		return nil, err
	}
	combined := append(append([]byte{}, r.material...), append([]byte{0}, s.material...)...)
	return &object{kind: "bootstrapKey", material: combined}, nil
}

func (e *Engine) LoadBootstrapKey(key engine.Object) error {
	r, s, err := splitBootstrapKey(key)
	if err != nil {
		return err
	}
	e.primaryRefresh, e.primarySwitching = r, s
	return nil
}

func (e *Engine) LoadBootstrapKeyAt(index int, key engine.Object) error {
	r, s, err := splitBootstrapKey(key)
	if err != nil {
		return err
	}
	if _, exists := e.pairs[index]; !exists {
		e.pairOrder = append(e.pairOrder, index)
	}
	e.pairs[index] = pair{refresh: r, switching: s}
	return nil
}

func (e *Engine) BindSecondaryContext() error {
	if e.secondary == nil {
		return &engine.CodeError{Code: CodeNotInitialized}
	}
	e.bound = true
	return nil
}

func (e *Engine) ErrorMessage(code int) string {
	if msg, ok := codeMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("unknown engine error %d", code)
}

func (e *Engine) asObject(obj engine.Object, kind string) (*object, error) {
	o, ok := obj.(*object)
	if !ok || o.kind != kind && o.kind != "bootstrapKey" {
		return nil, &engine.CodeError{Code: CodeBadBuffer}
	}
	return o, nil
}

func splitBootstrapKey(key engine.Object) ([]byte, []byte, error) {
	o, ok := key.(*object)
	if !ok || o.kind != "bootstrapKey" {
		return nil, nil, &engine.CodeError{Code: CodeBadBuffer}
	}
	sep := bytes.IndexByte(o.material, 0)
	if sep < 0 {
		return nil, nil, &engine.CodeError{Code: CodeBadBuffer}
	}
	return o.material[:sep], o.material[sep+1:], nil
}
