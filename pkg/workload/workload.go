// Package workload 读取 CSV 负载文件，把每一行转换为以标题行为键的 JSON 对象。
package workload

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	// ErrEmptyWorkload 文件没有标题行。
	ErrEmptyWorkload = errors.New("workload: empty workload file")

	// ErrFieldCount 数据行与标题行的列数不一致。
	ErrFieldCount = errors.New("workload: field count mismatch")
)

// Record 一行数据。
type Record struct {
	// Line 数据行在文件中的行号，标题行为 1。
	Line   int
	Header []string
	Values []string
}

// JSON 按标题行顺序输出 JSON 对象，所有值均为字符串。
func (r Record) JSON() ([]byte, error) {
	if len(r.Header) != len(r.Values) {
		return nil, fmt.Errorf("%w: line %d has %d fields, header has %d",
			ErrFieldCount, r.Line, len(r.Values), len(r.Header))
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.Header {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Scanner 逐行读取负载文件。
type Scanner struct {
	r      *csv.Reader
	closer io.Closer
	header []string
}

// Open 打开负载文件并读取标题行。
func Open(path string) (*Scanner, error) {
	f, err := os.Open(path) //nolint:gosec // 路径来自命令行参数
	if err != nil {
		return nil, fmt.Errorf("workload: open %s: %w", path, err)
	}
	s, err := NewScanner(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// NewScanner 从 r 读取标题行。
func NewScanner(r io.Reader) (*Scanner, error) {
	cr := csv.NewReader(r)
	// 列数由 Record.JSON 校验，便于报告具体行号。
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyWorkload
	}
	if err != nil {
		return nil, fmt.Errorf("workload: read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return &Scanner{r: cr, header: header}, nil
}

// Header 返回标题行。
func (s *Scanner) Header() []string { return s.header }

// Next 返回下一行数据，读完时返回 io.EOF。
func (s *Scanner) Next() (Record, error) {
	values, err := s.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("workload: read record: %w", err)
	}
	line, _ := s.r.FieldPos(0)
	return Record{Line: line, Header: s.header, Values: values}, nil
}

// Close 关闭底层文件，NewScanner 创建的 Scanner 无需关闭。
func (s *Scanner) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
