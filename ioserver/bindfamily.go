package ioserver

import "fmt"

// BindFamily selects the address family a Channel's socket binds to.
type BindFamily int

const (
	BindAuto BindFamily = iota
	BindIPv4
	BindIPv6
)

func (f BindFamily) network() string {
	switch f {
	case BindIPv4:
		return "udp4"
	case BindIPv6:
		return "udp6"
	default:
		return "udp"
	}
}

// ParseBindFamily accepts the numeric (0/4/6) or string
// ("auto"/"unspec"/"any", "ipv4"/"inet", "ipv6"/"inet6") spellings of a
// bind family.
func ParseBindFamily(v any) (BindFamily, error) {
	switch t := v.(type) {
	case nil:
		return BindAuto, nil
	case BindFamily:
		return t, nil
	case int:
		return parseBindFamilyInt(t)
	case string:
		return parseBindFamilyString(t)
	default:
		return BindAuto, fmt.Errorf("ioserver: unsupported bind_family value %T", v)
	}
}

func parseBindFamilyInt(n int) (BindFamily, error) {
	switch n {
	case 0:
		return BindAuto, nil
	case 4:
		return BindIPv4, nil
	case 6:
		return BindIPv6, nil
	default:
		return BindAuto, fmt.Errorf("ioserver: unsupported bind_family %d", n)
	}
}

func parseBindFamilyString(s string) (BindFamily, error) {
	switch s {
	case "auto", "unspec", "any", "":
		return BindAuto, nil
	case "ipv4", "inet", "af_inet":
		return BindIPv4, nil
	case "ipv6", "inet6", "af_inet6":
		return BindIPv6, nil
	default:
		return BindAuto, fmt.Errorf("ioserver: unsupported bind_family %q", s)
	}
}
