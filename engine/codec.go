package engine

import (
	"encoding/binary"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/edpaget/ycrdt-bridge/errors"
)

// Binary update format. An update is the unit of state exchange between
// replicas: a header followed by a list of ops identified by (replica,
// clock). A state vector summarizes which op ids a replica has seen.

const (
	updateMagic      = 0x59 // 'Y'
	stateVectorMagic = 0x56 // 'V'
	codecVersion     = 1

	// Safety limits for decoding untrusted buffers.
	maxDecodeString = 16 << 20 // 16 MB
	maxDecodeCount  = 1 << 20  // 1M elements
)

// EncodeStateAsUpdate encodes the document's full history as one update.
// Applying it to a fresh document reproduces equal content.
func EncodeStateAsUpdate(d *Doc) ([]byte, error) {
	txn := d.BeginRead()
	defer txn.Commit()

	return encodeOps(d.log)
}

// EncodeStateVector encodes the document's version summary.
func EncodeStateVector(d *Doc) ([]byte, error) {
	txn := d.BeginRead()
	defer txn.Commit()

	var buf []byte
	buf = append(buf, stateVectorMagic, codecVersion)

	replicas := make([]uint64, 0, len(d.sv))
	for r := range d.sv {
		replicas = append(replicas, r)
	}
	sort.Slice(replicas, func(i, j int) bool { return replicas[i] < replicas[j] })

	buf = binary.AppendUvarint(buf, uint64(len(replicas)))
	for _, r := range replicas {
		buf = binary.AppendUvarint(buf, r)
		buf = binary.AppendUvarint(buf, d.sv[r])
	}
	return buf, nil
}

// EncodeDiff encodes the ops the holder of the given state vector is missing.
func EncodeDiff(d *Doc, stateVector []byte) ([]byte, error) {
	sv, err := decodeStateVector(stateVector)
	if err != nil {
		return nil, err
	}

	txn := d.BeginRead()
	defer txn.Commit()

	var missing []op
	for _, o := range d.log {
		if o.Clock >= sv[o.Replica] {
			missing = append(missing, o)
		}
	}
	return encodeOps(missing)
}

// ApplyUpdate decodes an update and applies the ops this document has not yet
// seen, inside one write transaction. Observers see one coalesced change per
// touched container, same as a local commit.
func ApplyUpdate(d *Doc, update []byte) error {
	ops, err := decodeOps(update)
	if err != nil {
		return err
	}

	txn := d.BeginWrite()
	txn.external = true
	defer txn.Commit()

	for _, o := range ops {
		if o.Clock < d.sv[o.Replica] {
			continue
		}
		if err := applyOp(txn, o); err != nil {
			// A non-applicable op is a merge artifact, not corruption of
			// this document; the authoritative state is still readable.
			Logger().Warn("skipping non-applicable op",
				zap.String("op", o.Kind.String()),
				zap.Uint64("replica", o.Replica),
				zap.Uint64("clock", o.Clock),
				zap.Error(err))
			continue
		}
		d.log = append(d.log, o)
		next := o.Clock + 1
		if next > d.sv[o.Replica] {
			d.sv[o.Replica] = next
		}
		// Replicas are not prevented from sharing a client id. Ops carrying
		// this document's own replica id must push the local clock forward or
		// the next commit would reuse their ids and regress the state vector.
		if o.Replica == d.replica && next > d.clock {
			d.clock = next
		}
	}
	return nil
}

// MergeUpdates combines several encoded updates into one, deduplicating by
// op id and ordering each replica's ops by clock.
func MergeUpdates(updates [][]byte) ([]byte, error) {
	type opID struct {
		replica, clock uint64
	}
	seen := make(map[opID]bool)
	var merged []op

	for _, u := range updates {
		ops, err := decodeOps(u)
		if err != nil {
			return nil, err
		}
		for _, o := range ops {
			id := opID{o.Replica, o.Clock}
			if seen[id] {
				continue
			}
			seen[id] = true
			merged = append(merged, o)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Clock != merged[j].Clock {
			return merged[i].Clock < merged[j].Clock
		}
		return merged[i].Replica < merged[j].Replica
	})
	return encodeOps(merged)
}

// applyOp replays one decoded op against the document through the normal
// container mutation paths.
func applyOp(txn *Txn, o op) error {
	d := txn.doc
	switch o.ContKind {
	case ContainerList:
		l, err := d.GetList(o.Name)
		if err != nil {
			return err
		}
		switch o.Kind {
		case opListInsert:
			return l.Insert(txn, o.Index, o.Values...)
		case opListRemove:
			return l.Remove(txn, o.Index, o.N)
		}
	case ContainerMap:
		m, err := d.GetMap(o.Name)
		if err != nil {
			return err
		}
		switch o.Kind {
		case opMapSet:
			if len(o.Values) != 1 {
				return errors.InvalidData(errors.PhaseCodec, "map set op without value")
			}
			return m.Set(txn, o.Key, o.Values[0])
		case opMapRemove:
			return m.Remove(txn, o.Key)
		case opMapClear:
			return m.Clear(txn)
		}
	case ContainerText:
		t, err := d.GetText(o.Name)
		if err != nil {
			return err
		}
		switch o.Kind {
		case opTextInsert:
			return t.Insert(txn, o.Index, o.Text, o.Attrs)
		case opTextDelete:
			return t.Delete(txn, o.Index, o.N)
		}
	case ContainerXML:
		x, err := d.GetXMLElement(o.Name)
		if err != nil {
			return err
		}
		switch o.Kind {
		case opXMLInsertText:
			return x.InsertText(txn, o.Path, o.Index, o.Text)
		case opXMLInsertElement:
			return x.InsertElement(txn, o.Path, o.Index, o.Key)
		case opXMLRemoveChildren:
			return x.RemoveChildren(txn, o.Path, o.Index, o.N)
		case opXMLSetAttr:
			if len(o.Values) != 1 {
				return errors.InvalidData(errors.PhaseCodec, "xml set-attr op without value")
			}
			return x.SetAttr(txn, o.Path, o.Key, o.Values[0])
		case opXMLRemoveAttr:
			return x.RemoveAttr(txn, o.Path, o.Key)
		}
	}
	return errors.InvalidData(errors.PhaseCodec, "unknown op "+o.Kind.String())
}

func encodeOps(ops []op) ([]byte, error) {
	var buf []byte
	buf = append(buf, updateMagic, codecVersion)
	buf = binary.AppendUvarint(buf, uint64(len(ops)))
	for i := range ops {
		var err error
		buf, err = appendOp(buf, &ops[i])
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func appendOp(buf []byte, o *op) ([]byte, error) {
	buf = binary.AppendUvarint(buf, o.Replica)
	buf = binary.AppendUvarint(buf, o.Clock)
	buf = append(buf, byte(o.ContKind), byte(o.Kind))
	buf = appendString(buf, o.Name)
	buf = binary.AppendUvarint(buf, uint64(len(o.Path)))
	for _, p := range o.Path {
		buf = binary.AppendUvarint(buf, uint64(p))
	}
	buf = binary.AppendUvarint(buf, uint64(o.Index))
	buf = binary.AppendUvarint(buf, uint64(o.N))
	buf = appendString(buf, o.Key)
	buf = appendString(buf, o.Text)

	buf = binary.AppendUvarint(buf, uint64(len(o.Values)))
	for _, v := range o.Values {
		var err error
		buf, err = appendValue(buf, v)
		if err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(o.Attrs))
	for k := range o.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf = binary.AppendUvarint(buf, uint64(len(keys)))
	for _, k := range keys {
		buf = appendString(buf, k)
		var err error
		buf, err = appendValue(buf, o.Attrs[k])
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func appendValue(buf []byte, v Value) ([]byte, error) {
	switch v.Kind {
	case KindContainer:
		// Containers cross the codec as their string form.
		buf = append(buf, byte(KindString))
		return appendString(buf, v.Container.stringForm()), nil
	case KindDoc:
		nested, err := EncodeStateAsUpdate(v.Doc)
		if err != nil {
			return nil, err
		}
		buf = append(buf, byte(KindDoc))
		return appendBytes(buf, nested), nil
	case KindNull:
		return append(buf, byte(KindNull)), nil
	case KindBool:
		buf = append(buf, byte(KindBool))
		if v.Bool {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil
	case KindInt:
		buf = append(buf, byte(KindInt))
		return binary.AppendVarint(buf, v.Int), nil
	case KindFloat:
		buf = append(buf, byte(KindFloat))
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.Float)), nil
	case KindString:
		buf = append(buf, byte(KindString))
		return appendString(buf, v.Str), nil
	case KindBytes:
		buf = append(buf, byte(KindBytes))
		return appendBytes(buf, v.Bytes), nil
	default:
		return nil, errors.InvalidData(errors.PhaseCodec, "unencodable value kind "+v.Kind.String())
	}
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

// reader is a bounds-checked decode cursor.
type reader struct {
	buf []byte
	off int
}

func (r *reader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		return 0, errors.InvalidData(errors.PhaseCodec, "truncated varint")
	}
	r.off += n
	return v, nil
}

func (r *reader) varint() (int64, error) {
	v, n := binary.Varint(r.buf[r.off:])
	if n <= 0 {
		return 0, errors.InvalidData(errors.PhaseCodec, "truncated varint")
	}
	r.off += n
	return v, nil
}

func (r *reader) byte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, errors.InvalidData(errors.PhaseCodec, "truncated buffer")
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *reader) take(n uint64) ([]byte, error) {
	if n > maxDecodeString || r.off+int(n) > len(r.buf) {
		return nil, errors.InvalidData(errors.PhaseCodec, "truncated buffer")
	}
	b := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return b, nil
}

func (r *reader) string() (string, error) {
	n, err := r.uvarint()
	if err != nil {
		return "", err
	}
	b, err := r.take(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) bytes() ([]byte, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (r *reader) count() (int, error) {
	n, err := r.uvarint()
	if err != nil {
		return 0, err
	}
	if n > maxDecodeCount {
		return 0, errors.InvalidData(errors.PhaseCodec, "count exceeds decode limit")
	}
	return int(n), nil
}

func decodeOps(update []byte) ([]op, error) {
	r := &reader{buf: update}

	magic, err := r.byte()
	if err != nil {
		return nil, err
	}
	version, err := r.byte()
	if err != nil {
		return nil, err
	}
	if magic != updateMagic || version != codecVersion {
		return nil, errors.InvalidData(errors.PhaseCodec, "not an update buffer")
	}

	count, err := r.count()
	if err != nil {
		return nil, err
	}
	ops := make([]op, 0, count)
	for i := 0; i < count; i++ {
		o, err := decodeOp(r)
		if err != nil {
			return nil, err
		}
		ops = append(ops, o)
	}
	return ops, nil
}

func decodeOp(r *reader) (op, error) {
	var o op
	var err error

	if o.Replica, err = r.uvarint(); err != nil {
		return o, err
	}
	if o.Clock, err = r.uvarint(); err != nil {
		return o, err
	}
	ck, err := r.byte()
	if err != nil {
		return o, err
	}
	o.ContKind = ContainerKind(ck)
	ok, err := r.byte()
	if err != nil {
		return o, err
	}
	o.Kind = opKind(ok)
	if o.Name, err = r.string(); err != nil {
		return o, err
	}

	pathLen, err := r.count()
	if err != nil {
		return o, err
	}
	for i := 0; i < pathLen; i++ {
		p, err := r.uvarint()
		if err != nil {
			return o, err
		}
		o.Path = append(o.Path, int(p))
	}

	idx, err := r.uvarint()
	if err != nil {
		return o, err
	}
	o.Index = int(idx)
	n, err := r.uvarint()
	if err != nil {
		return o, err
	}
	o.N = int(n)
	if o.Key, err = r.string(); err != nil {
		return o, err
	}
	if o.Text, err = r.string(); err != nil {
		return o, err
	}

	valCount, err := r.count()
	if err != nil {
		return o, err
	}
	for i := 0; i < valCount; i++ {
		v, err := decodeValue(r)
		if err != nil {
			return o, err
		}
		o.Values = append(o.Values, v)
	}

	attrCount, err := r.count()
	if err != nil {
		return o, err
	}
	if attrCount > 0 {
		o.Attrs = make(map[string]Value, attrCount)
		for i := 0; i < attrCount; i++ {
			k, err := r.string()
			if err != nil {
				return o, err
			}
			v, err := decodeValue(r)
			if err != nil {
				return o, err
			}
			o.Attrs[k] = v
		}
	}
	return o, nil
}

func decodeValue(r *reader) (Value, error) {
	kind, err := r.byte()
	if err != nil {
		return Value{}, err
	}
	switch ValueKind(kind) {
	case KindNull:
		return Null(), nil
	case KindBool:
		b, err := r.byte()
		if err != nil {
			return Value{}, err
		}
		return BoolValue(b != 0), nil
	case KindInt:
		i, err := r.varint()
		if err != nil {
			return Value{}, err
		}
		return IntValue(i), nil
	case KindFloat:
		b, err := r.take(8)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
	case KindString:
		s, err := r.string()
		if err != nil {
			return Value{}, err
		}
		return StringValue(s), nil
	case KindBytes:
		b, err := r.bytes()
		if err != nil {
			return Value{}, err
		}
		return BytesValue(b), nil
	case KindDoc:
		nested, err := r.bytes()
		if err != nil {
			return Value{}, err
		}
		doc := NewDoc()
		if err := ApplyUpdate(doc, nested); err != nil {
			return Value{}, err
		}
		return DocValue(doc), nil
	default:
		return Value{}, errors.InvalidData(errors.PhaseCodec, "unknown value kind in buffer")
	}
}

func decodeStateVector(buf []byte) (map[uint64]uint64, error) {
	r := &reader{buf: buf}

	magic, err := r.byte()
	if err != nil {
		return nil, err
	}
	version, err := r.byte()
	if err != nil {
		return nil, err
	}
	if magic != stateVectorMagic || version != codecVersion {
		return nil, errors.InvalidData(errors.PhaseCodec, "not a state vector buffer")
	}

	count, err := r.count()
	if err != nil {
		return nil, err
	}
	sv := make(map[uint64]uint64, count)
	for i := 0; i < count; i++ {
		replica, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		clock, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		sv[replica] = clock
	}
	return sv, nil
}
