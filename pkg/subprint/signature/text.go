package signature

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// TextSeparator divides hashes from reliability bytes in the text form.
const TextSeparator = "---"

// WriteText writes the debug/export form: one decimal hash per line, the
// separator line, then one decimal reliability byte per line.
func (s *Signature) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, h := range s.hashes {
		bw.WriteString(strconv.FormatUint(uint64(h), 10))
		bw.WriteByte('\n')
	}
	bw.WriteString(TextSeparator)
	bw.WriteByte('\n')
	for _, r := range s.reliabilities {
		for _, b := range r {
			bw.WriteString(strconv.Itoa(int(b)))
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

// ReadText parses the form produced by WriteText. A missing separator or an
// empty reliability section yields a signature without reliabilities.
func ReadText(r io.Reader, opts ...Option) (*Signature, error) {
	sc := bufio.NewScanner(r)

	var hashes []uint32
	var relBytes []byte
	inReliabilities := false
	line := 0

	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if text == TextSeparator {
			if inReliabilities {
				return nil, fmt.Errorf("%w: second separator on line %d", ErrMalformedSignature, line)
			}
			inReliabilities = true
			continue
		}
		if !inReliabilities {
			v, err := strconv.ParseUint(text, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedSignature, line, err)
			}
			hashes = append(hashes, uint32(v))
			continue
		}
		v, err := strconv.ParseUint(text, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedSignature, line, err)
		}
		relBytes = append(relBytes, byte(v))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading signature text: %w", err)
	}

	var rel []Reliability
	if len(relBytes) > 0 {
		var err error
		rel, err = DecodeReliabilities(relBytes)
		if err != nil {
			return nil, err
		}
	}
	return New(hashes, rel, opts...)
}
