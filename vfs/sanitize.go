package vfs

import "strings"

// maxSanitizedNameBytes is the longest filename sanitize will produce,
// matching the common 255-byte limit shared by ext4, NTFS and most cloud
// providers' own name limits.
const maxSanitizedNameBytes = 255

// illegalNameChars are characters not legal (or not portable) across
// target filesystems, beyond the path separator and control characters:
// Windows reserves <>:"\|?* in filenames, and providers that mirror onto
// a Windows-backed store reject them too.
const illegalNameChars = `<>:"\|?*`

// sanitize strips path separators, the Windows-reserved character set, and
// control characters a provider might reject or that would otherwise let a
// filename escape its intended directory entry. FUSE already refuses "/"
// and "\x00" in a single path component, but adapters build provider-side
// paths from these names too (e.g. the S3 adapter joining bucket/key), so
// this is enforced again here. The result is also truncated to 255 bytes
// UTF-8 and, if it collapses to "." or "..", replaced with a name that
// can't be mistaken for a directory reference.
func sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == 0:
			continue
		case r < 0x20:
			continue
		case strings.ContainsRune(illegalNameChars, r):
			continue
		default:
			b.WriteRune(r)
		}
	}
	out := truncateUTF8(b.String(), maxSanitizedNameBytes)

	switch out {
	case "":
		return "_"
	case ".":
		return "_dot_"
	case "..":
		return "_dotdot_"
	default:
		return out
	}
}

// truncateUTF8 cuts s to at most n bytes without splitting a multi-byte
// rune in half.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isUTF8Boundary(s[n]) {
		n--
	}
	return s[:n]
}

func isUTF8Boundary(b byte) bool {
	return b&0xC0 != 0x80
}
