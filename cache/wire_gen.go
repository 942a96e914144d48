// msgp -file cache/wire.go -tests=false -marshal=false
// Hand-written in the same shape `msgp` would generate (see
// dsort/extract/shard_gen.go for the pattern this follows); DO NOT hand-edit
// field tags without regenerating by hand in lockstep.
package cache

import (
	"github.com/tinylib/msgp/msgp"
)

// DecodeMsg implements msgp.Decodable.
func (z *WireKey) DecodeMsg(dc *msgp.Reader) (err error) {
	var field []byte
	_ = field
	var zb0001 uint32
	zb0001, err = dc.ReadMapHeader()
	if err != nil {
		err = msgp.WrapError(err)
		return
	}
	for zb0001 > 0 {
		zb0001--
		field, err = dc.ReadMapKeyPtr()
		if err != nil {
			err = msgp.WrapError(err)
			return
		}
		switch msgp.UnsafeString(field) {
		case "n":
			z.Name, err = dc.ReadString()
			if err != nil {
				err = msgp.WrapError(err, "Name")
				return
			}
		case "v":
			z.Value, err = dc.ReadBytes(z.Value)
			if err != nil {
				err = msgp.WrapError(err, "Value")
				return
			}
		case "b":
			z.Binary, err = dc.ReadBool()
			if err != nil {
				err = msgp.WrapError(err, "Binary")
				return
			}
		case "m":
			var zb0002 uint32
			zb0002, err = dc.ReadMapHeader()
			if err != nil {
				err = msgp.WrapError(err, "Meta")
				return
			}
			if z.Meta == nil {
				z.Meta = make(map[string]string, zb0002)
			} else if len(z.Meta) > 0 {
				for k := range z.Meta {
					delete(z.Meta, k)
				}
			}
			for zb0002 > 0 {
				zb0002--
				var mk string
				var mv string
				mk, err = dc.ReadString()
				if err != nil {
					err = msgp.WrapError(err, "Meta")
					return
				}
				mv, err = dc.ReadString()
				if err != nil {
					err = msgp.WrapError(err, "Meta", mk)
					return
				}
				z.Meta[mk] = mv
			}
		default:
			err = dc.Skip()
			if err != nil {
				err = msgp.WrapError(err)
				return
			}
		}
	}
	return
}

// EncodeMsg implements msgp.Encodable.
func (z *WireKey) EncodeMsg(en *msgp.Writer) (err error) {
	// map header, size 4
	err = en.Append(0x84, 0xa1, 0x6e)
	if err != nil {
		return
	}
	err = en.WriteString(z.Name)
	if err != nil {
		err = msgp.WrapError(err, "Name")
		return
	}
	err = en.Append(0xa1, 0x76)
	if err != nil {
		return
	}
	err = en.WriteBytes(z.Value)
	if err != nil {
		err = msgp.WrapError(err, "Value")
		return
	}
	err = en.Append(0xa1, 0x62)
	if err != nil {
		return
	}
	err = en.WriteBool(z.Binary)
	if err != nil {
		err = msgp.WrapError(err, "Binary")
		return
	}
	err = en.Append(0xa1, 0x6d)
	if err != nil {
		return
	}
	err = en.WriteMapHeader(uint32(len(z.Meta)))
	if err != nil {
		err = msgp.WrapError(err, "Meta")
		return
	}
	for mk, mv := range z.Meta {
		err = en.WriteString(mk)
		if err != nil {
			err = msgp.WrapError(err, "Meta")
			return
		}
		err = en.WriteString(mv)
		if err != nil {
			err = msgp.WrapError(err, "Meta", mk)
			return
		}
	}
	return
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by
// the serialized message.
func (z *WireKey) Msgsize() (s int) {
	s = 1 + 2 + msgp.StringPrefixSize + len(z.Name)
	s += 2 + msgp.BytesPrefixSize + len(z.Value)
	s += 2 + msgp.BoolSize
	s += 2 + msgp.MapHeaderSize
	for mk, mv := range z.Meta {
		_ = mv
		s += msgp.StringPrefixSize + len(mk) + msgp.StringPrefixSize + len(mv)
	}
	return
}

// DecodeMsg implements msgp.Decodable.
func (z *WireSet) DecodeMsg(dc *msgp.Reader) (err error) {
	var zb0001 uint32
	zb0001, err = dc.ReadArrayHeader()
	if err != nil {
		err = msgp.WrapError(err)
		return
	}
	if cap(z.Keys) >= int(zb0001) {
		z.Keys = z.Keys[:zb0001]
	} else {
		z.Keys = make([]WireKey, zb0001)
	}
	for i := range z.Keys {
		err = z.Keys[i].DecodeMsg(dc)
		if err != nil {
			err = msgp.WrapError(err, "Keys", i)
			return
		}
	}
	return
}

// EncodeMsg implements msgp.Encodable.
func (z *WireSet) EncodeMsg(en *msgp.Writer) (err error) {
	err = en.WriteArrayHeader(uint32(len(z.Keys)))
	if err != nil {
		err = msgp.WrapError(err)
		return
	}
	for i := range z.Keys {
		err = z.Keys[i].EncodeMsg(en)
		if err != nil {
			err = msgp.WrapError(err, "Keys", i)
			return
		}
	}
	return
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by
// the serialized message.
func (z *WireSet) Msgsize() (s int) {
	s = msgp.ArrayHeaderSize
	for _, k := range z.Keys {
		s += k.Msgsize()
	}
	return
}
