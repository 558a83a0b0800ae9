package plan

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/dis"
	"github.com/deepnoodle-ai/hookasm/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// SnapshotVersion is the format version written by Snapshot.MarshalBinary.
const SnapshotVersion = 1

// Snapshot is a serializable copy of a set of classes. Method bodies are
// stored in asm syntax.
type Snapshot struct {
	Version int           `msgpack:"v"`
	RunID   string        `msgpack:"run,omitempty"`
	Created time.Time     `msgpack:"at"`
	Classes []ClassRecord `msgpack:"c"`
}

// ClassRecord is a class inside a snapshot.
type ClassRecord struct {
	Name    string         `msgpack:"n"`
	Access  uint16         `msgpack:"a"`
	Methods []MethodRecord `msgpack:"m"`
}

// MethodRecord is a method inside a snapshot.
type MethodRecord struct {
	Access    uint16        `msgpack:"a"`
	Name      string        `msgpack:"n"`
	Desc      string        `msgpack:"d"`
	MaxStack  int           `msgpack:"ms"`
	MaxLocals int           `msgpack:"ml"`
	Code      string        `msgpack:"code"`
	Locals    []LocalRecord `msgpack:"lv,omitempty"`
}

// LocalRecord is a local variable table entry; Start and End are label
// names in Code.
type LocalRecord struct {
	Name  string `msgpack:"n"`
	Desc  string `msgpack:"d"`
	Index int    `msgpack:"i"`
	Start string `msgpack:"s,omitempty"`
	End   string `msgpack:"e,omitempty"`
}

// NewSnapshot records classes as they are now.
func NewSnapshot(runID string, classes []*bytecode.Class) *Snapshot {
	s := &Snapshot{Version: SnapshotVersion, RunID: runID, Created: time.Now().UTC()}
	for _, c := range classes {
		rec := ClassRecord{Name: c.Name, Access: uint16(c.Access)}
		for _, m := range c.Methods {
			rec.Methods = append(rec.Methods, methodRecord(m))
		}
		s.Classes = append(s.Classes, rec)
	}
	return s
}

func methodRecord(m *bytecode.Method) MethodRecord {
	rec := MethodRecord{
		Access:    uint16(m.Access),
		Name:      m.Name,
		Desc:      m.Desc,
		MaxStack:  m.MaxStack,
		MaxLocals: m.MaxLocals,
	}
	names := map[*bytecode.Label]string{}
	if m.Instructions != nil {
		rec.Code = dis.Format(m.Instructions)
		names = dis.LabelNames(m.Instructions)
	}
	for _, lv := range m.LocalVariables {
		lr := LocalRecord{Name: lv.Name, Desc: lv.Desc, Index: lv.Index}
		if lv.Start != nil {
			lr.Start = names[lv.Start]
		}
		if lv.End != nil {
			lr.End = names[lv.End]
		}
		rec.Locals = append(rec.Locals, lr)
	}
	return rec
}

// Restore reassembles the classes held by the snapshot.
func (s *Snapshot) Restore() ([]*bytecode.Class, error) {
	var classes []*bytecode.Class
	for _, cr := range s.Classes {
		class := &bytecode.Class{Name: cr.Name, Access: bytecode.Access(cr.Access)}
		for _, mr := range cr.Methods {
			md := MethodDef{
				Name:      mr.Name,
				Desc:      mr.Desc,
				MaxStack:  mr.MaxStack,
				MaxLocals: mr.MaxLocals,
				Code:      mr.Code,
			}
			for _, lr := range mr.Locals {
				md.Locals = append(md.Locals, LocalDef(lr))
			}
			m, err := md.build()
			if err != nil {
				return nil, fmt.Errorf("snapshot %s.%s%s: %w", cr.Name, mr.Name, mr.Desc, err)
			}
			m.Access = bytecode.Access(mr.Access)
			class.Methods = append(class.Methods, m)
		}
		classes = append(classes, class)
	}
	return classes, nil
}

// MarshalBinary encodes the snapshot as zstd compressed msgpack.
func (s *Snapshot) MarshalBinary() ([]byte, error) {
	data, err := msgpack.Marshal(s)
	if err != nil {
		return nil, err
	}
	return zstdCompress(nil, data), nil
}

// UnmarshalBinary decodes data written by MarshalBinary.
func (s *Snapshot) UnmarshalBinary(data []byte) error {
	raw, err := zstdDecompress(nil, data)
	if err != nil {
		return errors.Wrap(errors.E5001, err, "corrupt snapshot")
	}
	if err := msgpack.Unmarshal(raw, s); err != nil {
		return errors.Wrap(errors.E5001, err, "corrupt snapshot")
	}
	if s.Version != SnapshotVersion {
		return errors.New(errors.E5001, "unsupported snapshot version %d", s.Version)
	}
	return nil
}

// WriteSnapshot writes s to path.
func WriteSnapshot(path string, s *Snapshot) error {
	data, err := s.MarshalBinary()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot reads a snapshot written by WriteSnapshot.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Snapshot
	if err := s.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &s, nil
}

func zstdCompress(dst, data []byte) []byte {
	encOpts := []zstd.EOption{
		zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
	}
	if len(data) > 1024*1024*100 {
		encOpts = append(encOpts, zstd.WithEncoderConcurrency(max(1, runtime.NumCPU()/2)))
	}
	encoder, err := zstd.NewWriter(nil, encOpts...)
	if err != nil {
		panic(err) // only fails on invalid options
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, dst)
}

func zstdDecompress(dst, data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()
	return decoder.DecodeAll(data, dst)
}
