// Package protect не даёт исходящим запросам уйти во внутреннюю сеть.
package protect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

var privateIPBlocks []*net.IPNet

func init() {
	for _, cidr := range []string{
		"0.0.0.0/8",      // "этот" хост
		"127.0.0.0/8",    // localhost
		"10.0.0.0/8",     // private network
		"100.64.0.0/10",  // carrier-grade NAT
		"172.16.0.0/12",  // private network
		"192.168.0.0/16", // private network
		"169.254.0.0/16", // link-local
		"::/128",         // IPv6 unspecified
		"::1/128",        // IPv6 loopback
		"fc00::/7",       // IPv6 unique local
		"fe80::/10",      // IPv6 link-local
	} {
		_, block, _ := net.ParseCIDR(cidr)
		privateIPBlocks = append(privateIPBlocks, block)
	}
}

func IsPrivateIP(ip net.IP) bool {
	for _, block := range privateIPBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

var ErrSSRF = errors.New("ssrf protection")

// Resolver: то, чем ReplaceHostToIP разрешает имена. *net.Resolver подходит.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// ReplaceHostToIP резолвит хост, проверяет ip, возвращает адрес в котором host заменен на ip.
// Возвращает любые ошибки которые возникаю при разрешении хоста. Если хотя бы один ip локальный,
// возвращает ошибку ErrSSRF.
func ReplaceHostToIP(ctx context.Context, r Resolver, addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}

	ips, err := r.LookupIPAddr(ctx, host)
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("no IP addresses found for %s", host)
	}

	for _, ip := range ips {
		if IsPrivateIP(ip.IP) {
			return "", fmt.Errorf("%w: private IP %s is not allowed", ErrSSRF, ip.IP)
		}
	}

	return net.JoinHostPort(ips[0].IP.String(), port), nil
}

// NewHTTPClient создаёт клиент с короткими таймаутами, который не ходит на
// приватные адреса. Проверяется адрес, на который реально идёт соединение,
// поэтому редирект во внутреннюю сеть тоже не пройдёт.
func NewHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				addr, err := ReplaceHostToIP(ctx, net.DefaultResolver, addr)
				if err != nil {
					return nil, err
				}
				return dialer.DialContext(ctx, network, addr)
			},
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}
