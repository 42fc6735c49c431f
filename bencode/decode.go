package bencode

import "fmt"

// decoder scans a bencode-encoded byte slice with an explicit cursor,
// tracking the byte offset of every value it produces so that RawField can
// later recover the exact source bytes of a sub-value.
type decoder struct {
	src []byte
	pos int
}

func (d *decoder) errf(format string, args ...interface{}) error {
	return &SyntaxError{d.pos, fmt.Sprintf(format, args...)}
}

func (d *decoder) peek() (byte, bool) {
	if d.pos >= len(d.src) {
		return 0, false
	}
	return d.src[d.pos], true
}

func (d *decoder) decodeValue() (*Value, error) {
	c, ok := d.peek()
	if !ok {
		return nil, d.errf("unexpected end of input")
	}
	switch {
	case c == 'i':
		return d.decodeInt()
	case c == 'l':
		return d.decodeList()
	case c == 'd':
		return d.decodeDict()
	case c >= '0' && c <= '9':
		return d.decodeBytes()
	default:
		return nil, d.errf("unexpected character %q", c)
	}
}

func (d *decoder) decodeInt() (*Value, error) {
	start := d.pos
	d.pos++ // 'i'
	digitsStart := d.pos
	for {
		c, ok := d.peek()
		if !ok {
			return nil, d.errf("unterminated integer")
		}
		if c == 'e' {
			break
		}
		if !(c == '-' && d.pos == digitsStart) && !(c >= '0' && c <= '9') {
			return nil, d.errf("non-numeric integer body")
		}
		d.pos++
	}
	digits := d.src[digitsStart:d.pos]
	if len(digits) == 0 {
		return nil, d.errf("empty integer body")
	}
	var neg bool
	if digits[0] == '-' {
		neg = true
		digits = digits[1:]
	}
	if len(digits) == 0 {
		return nil, d.errf("empty integer body")
	}
	if len(digits) > 1 && digits[0] == '0' {
		return nil, d.errf("integer has leading zero")
	}
	var n int64
	for _, c := range digits {
		n = n*10 + int64(c-'0')
	}
	if neg {
		n = -n
	}
	d.pos++ // 'e'
	return &Value{Kind: KindInt, Int: n, Start: start, End: d.pos}, nil
}

func (d *decoder) decodeBytes() (*Value, error) {
	start := d.pos
	lenStart := d.pos
	for {
		c, ok := d.peek()
		if !ok {
			return nil, d.errf("unterminated byte string length")
		}
		if c == ':' {
			break
		}
		if c < '0' || c > '9' {
			return nil, d.errf("non-numeric byte string length")
		}
		d.pos++
	}
	lenDigits := d.src[lenStart:d.pos]
	if len(lenDigits) == 0 {
		return nil, d.errf("empty byte string length")
	}
	var n int64
	for _, c := range lenDigits {
		n = n*10 + int64(c-'0')
	}
	if n < 0 {
		return nil, d.errf("negative byte string length")
	}
	d.pos++ // ':'
	if int64(len(d.src)-d.pos) < n {
		return nil, d.errf("byte string length exceeds remaining input")
	}
	b := d.src[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return &Value{Kind: KindBytes, Bytes: b, Start: start, End: d.pos}, nil
}

func (d *decoder) decodeList() (*Value, error) {
	start := d.pos
	d.pos++ // 'l'
	var list []*Value
	for {
		c, ok := d.peek()
		if !ok {
			return nil, d.errf("unterminated list")
		}
		if c == 'e' {
			d.pos++
			break
		}
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return &Value{Kind: KindList, List: list, Start: start, End: d.pos}, nil
}

func (d *decoder) decodeDict() (*Value, error) {
	start := d.pos
	d.pos++ // 'd'
	m := make(map[string]*Value)
	var keys []string
	for {
		c, ok := d.peek()
		if !ok {
			return nil, d.errf("unterminated dict")
		}
		if c == 'e' {
			d.pos++
			break
		}
		if c < '0' || c > '9' {
			return nil, d.errf("non-string dictionary key")
		}
		keyVal, err := d.decodeBytes()
		if err != nil {
			return nil, err
		}
		key := string(keyVal.Bytes)
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		m[key] = v
		keys = append(keys, key)
	}
	return &Value{Kind: KindDict, Dict: m, DictKeys: keys, Start: start, End: d.pos}, nil
}
