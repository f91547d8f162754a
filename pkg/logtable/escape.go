package logtable

import "fmt"

// escapeForFileName percent-encodes any byte outside [A-Za-z0-9_] so a
// table name can be used verbatim as a directory component, mirroring
// StorageLog's use of escapeForFileName throughout path construction.
func escapeForFileName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		b := name[i]
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9', b == '_':
			out = append(out, b)
		default:
			out = append(out, []byte(fmt.Sprintf("%%%02X", b))...)
		}
	}
	return string(out)
}
