package main

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/btccom/connectproxy"
	"golang.org/x/net/proxy"
)

type Dialer interface {
	// Dial connects to the given address.
	Dial(network, addr string) (net.Conn, error)
}

func GetProxyURLFromEnv() (url string) {
	url = os.Getenv("ALL_PROXY")
	if len(url) < 1 {
		url = os.Getenv("all_proxy")
	}
	if len(url) < 1 {
		url = os.Getenv("HTTPS_PROXY")
	}
	if len(url) < 1 {
		url = os.Getenv("https_proxy")
	}
	if len(url) < 1 {
		url = os.Getenv("HTTP_PROXY")
	}
	if len(url) < 1 {
		url = os.Getenv("http_proxy")
	}
	return
}

func RegularProxyURL(url string) string {
	if len(url) < 1 {
		return url
	}
	url = strings.TrimSpace(url)
	pos := strings.Index(url, "://")

	var protocol, address string
	if pos < 0 {
		protocol = "http"
		address = url
	} else {
		protocol = strings.ToLower(url[:pos])
		address = url[pos+3:]
	}

	switch protocol {
	case "":
		protocol = "http"
	case "socks4":
		fallthrough
	case "socks4a":
		fallthrough
	case "socks5":
		protocol = "socks"
	}
	return fmt.Sprintf("%s://%s", protocol, address)
}

func GetProxyDialer(proxyURL string, timeout time.Duration, insecureSkipVerify bool) (dailer Dialer, err error) {
	proxyURL = RegularProxyURL(proxyURL)
	u, err := url.Parse(proxyURL)
	if err != nil {
		return
	}

	if u.Scheme == "socks" {
		var auth proxy.Auth
		auth.User = u.User.Username()
		auth.Password, _ = u.User.Password()
		dailer, err = proxy.SOCKS5("tcp", u.Host, &auth, &net.Dialer{
			Timeout: timeout,
		})
		return
	}

	if u.Scheme == "http" || u.Scheme == "https" {
		dailer, err = connectproxy.NewWithConfig(
			u,
			&net.Dialer{
				Timeout: timeout,
			},
			&connectproxy.Config{
				InsecureSkipVerify: insecureSkipVerify,
				DialTimeout:        timeout,
			},
		)
		return
	}

	if len(proxyURL) > 0 {
		err = fmt.Errorf("unknown proxy scheme '%s'", u.Scheme)
	}
	return
}

// PoolTLSConf 矿池证书大多是自签名的，不做校验
var PoolTLSConf = &tls.Config{
	InsecureSkipVerify: true,
}

// DialPool 连接矿池，proxyURL 为空时直连
func DialPool(endpoint PoolEndpoint, proxyURL string) (conn net.Conn, err error) {
	var dialer Dialer = &net.Dialer{Timeout: PoolDialTimeout}
	if len(proxyURL) > 0 {
		dialer, err = GetProxyDialer(proxyURL, PoolDialTimeout, true)
		if err != nil {
			return
		}
	}

	conn, err = dialer.Dial("tcp", endpoint.Addr())
	if err != nil || !endpoint.UseTLS {
		return
	}

	tlsConn := tls.Client(conn, PoolTLSConf)
	tlsConn.SetDeadline(time.Now().Add(PoolDialTimeout))
	err = tlsConn.Handshake()
	if err != nil {
		conn.Close()
		return nil, err
	}
	tlsConn.SetDeadline(time.Time{})
	return tlsConn, nil
}
