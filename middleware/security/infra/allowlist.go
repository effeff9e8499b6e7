package infra

import (
	"net/netip"
	"slices"
	"strconv"
	"strings"
)

// AllowList é a lista de IPs permitidos: endereços IPv4 literais e faixas CIDR.
// Carregada uma vez; somente leitura depois disso (seguro para uso concorrente).
type AllowList struct {
	entries  []string
	literals map[string]struct{}
	cidrs    []cidr
}

type cidr struct {
	network uint32
	mask    uint32
}

// NewAllowList monta a lista. Entradas CIDR malformadas (ou não IPv4) são ignoradas no
// matching, nunca geram erro.
func NewAllowList(entries []string) *AllowList {
	a := &AllowList{literals: make(map[string]struct{}, len(entries))}
	for _, raw := range entries {
		e := strings.TrimSpace(raw)
		if e == "" || slices.Contains(a.entries, e) {
			continue
		}
		a.entries = append(a.entries, e)
		if !strings.Contains(e, "/") {
			a.literals[e] = struct{}{}
			continue
		}
		if c, ok := parseCIDR(e); ok {
			a.cidrs = append(a.cidrs, c)
		}
	}
	return a
}

// Len é o número de entradas distintas da lista (inclui entradas CIDR malformadas).
func (a *AllowList) Len() int {
	if a == nil {
		return 0
	}
	return len(a.entries)
}

func (a *AllowList) Empty() bool { return a.Len() == 0 }

// Contains informa se o endereço é um membro literal ou cai em alguma faixa CIDR.
func (a *AllowList) Contains(address string) bool {
	if a == nil {
		return false
	}
	address = strings.TrimSpace(address)
	if _, ok := a.literals[address]; ok {
		return true
	}
	ip, ok := ipv4ToUint32(address)
	if !ok {
		return false
	}
	for _, c := range a.cidrs {
		if ip&c.mask == c.network {
			return true
		}
	}
	return false
}

// parseCIDR interpreta base/prefixo e já guarda a base mascarada.
func parseCIDR(s string) (cidr, bool) {
	base, bits, ok := strings.Cut(s, "/")
	if !ok {
		return cidr{}, false
	}
	prefix, err := strconv.Atoi(bits)
	if err != nil || prefix < 0 || prefix > 32 {
		return cidr{}, false
	}
	ip, ok := ipv4ToUint32(base)
	if !ok {
		return cidr{}, false
	}
	mask := uint32(0)
	if prefix > 0 {
		mask = ^uint32(0) << (32 - prefix)
	}
	return cidr{network: ip & mask, mask: mask}, true
}

func ipv4ToUint32(s string) (uint32, bool) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return 0, false
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return 0, false
	}
	b := addr.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), true
}
