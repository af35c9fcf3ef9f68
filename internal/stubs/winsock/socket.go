// Package winsock provides ws2_32 stubs that tunnel TCP sockets through the
// backend bridge.
package winsock

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/pe"
	"github.com/JohnDoe6345789/winejs/internal/stubs"
	bridge "github.com/JohnDoe6345789/winejs/internal/winsock"
)

var dlls = []string{"ws2_32.dll", "wsock32.dll"}

const (
	socketError   = ^uint64(0)
	invalidSocket = ^uint64(0)
	firstHandle   = 0x100
	afInet        = 2
	winsockV22    = 0x0202

	wsaEWouldBlock  = 10035
	wsaENotSock     = 10038
	wsaEAFNoSupport = 10047
	wsaENetDown     = 10050
	wsaEConnReset   = 10054
	wsaENotConn     = 10057
	wsaEConnRefused = 10061
)

// Socket is one guest socket handle.
type Socket struct {
	Handle    uint32
	Host      string
	Port      uint16
	Connected bool
}

type table struct {
	next    uint32
	sockets map[uint32]*Socket
}

func sockets(s *stubs.Session) *table {
	return s.State("winsock", func() any {
		return &table{next: firstHandle, sockets: make(map[uint32]*Socket)}
	}).(*table)
}

// Sockets returns the sockets the guest has opened in s.
func Sockets(s *stubs.Session) []*Socket {
	t := sockets(s)
	out := make([]*Socket, 0, len(t.sockets))
	for h := uint32(firstHandle); h < t.next; h++ {
		if sock, ok := t.sockets[h]; ok {
			out = append(out, sock)
		}
	}
	return out
}

func init() {
	stubs.RegisterFunc("winsock", dlls, "WSAStartup", stubWSAStartup)
	stubs.RegisterFunc("winsock", dlls, "WSACleanup", stubWSACleanup)
	stubs.RegisterFunc("winsock", dlls, "socket", stubSocket)
	stubs.RegisterFunc("winsock", dlls, "connect", stubConnect)
	stubs.RegisterFunc("winsock", dlls, "send", stubSend)
	stubs.RegisterFunc("winsock", dlls, "recv", stubRecv)
	stubs.RegisterFunc("winsock", dlls, "closesocket", stubCloseSocket)
	stubs.RegisterFunc("winsock", dlls, "WSAGetLastError", stubWSAGetLastError)
	stubs.RegisterFunc("winsock", dlls, "WSASetLastError", stubWSASetLastError)

	stubs.RegisterDetector(stubs.Detector{
		Name:        "winsock",
		Patterns:    []string{"ws2_32*", "wsock32*", "*winsock*"},
		Activate:    activate,
		Description: "Winsock imports tunneled through the backend",
	})
}

func activate(s *stubs.Session, matched []pe.ImportSymbol) {
	if s.Bridge == nil {
		s.Log.Warn("winsock imports present but no backend bridge configured",
			zap.Int("imports", len(matched)),
		)
	}
}

func fail(s *stubs.Session, code uint32, detail string) emulator.HookOutcome {
	s.LastError = code
	s.Trace("winsock", fmt.Sprintf("%s error=%d", detail, code))
	return emulator.Handled(socketError)
}

func lookup(s *stubs.Session, call *emulator.ImportCall) (*Socket, bool) {
	sock, ok := sockets(s).sockets[uint32(call.Arg(0))]
	return sock, ok
}

// bridgeReady returns the bridge when requests can be sent.
func bridgeReady(s *stubs.Session) (*bridge.Bridge, bool) {
	if s.Bridge == nil || !s.Bridge.Ready() {
		return nil, false
	}
	return s.Bridge, true
}

func (sock *Socket) id() bridge.ConnectionID {
	return bridge.ConnectionID(sock.Handle)
}

// int WSAStartup(WORD wVersionRequested, LPWSADATA lpWSAData)
func stubWSAStartup(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	if data := call.Arg(1); data != 0 {
		cpu.Memory().WriteUint(data, 2, winsockV22)
		cpu.Memory().WriteUint(data+2, 2, winsockV22)
	}
	s.Trace("winsock", stubs.FormatPtr("version", call.Arg(0)&0xFFFF))
	return emulator.Handled(0)
}

func stubWSACleanup(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	return emulator.Handled(0)
}

// SOCKET socket(int af, int type, int protocol)
func stubSocket(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	if int32(call.Arg(0)) != afInet {
		s.LastError = wsaEAFNoSupport
		return emulator.Handled(invalidSocket)
	}
	t := sockets(s)
	sock := &Socket{Handle: t.next}
	t.sockets[sock.Handle] = sock
	t.next++
	s.Trace("winsock", stubs.FormatPtr("socket", uint64(sock.Handle)))
	return emulator.Handled(uint64(sock.Handle))
}

// parseSockaddrIn reads an IPv4 sockaddr_in.
func parseSockaddrIn(raw []byte) (string, uint16, bool) {
	if len(raw) < 8 || binary.LittleEndian.Uint16(raw[0:2]) != afInet {
		return "", 0, false
	}
	port := binary.BigEndian.Uint16(raw[2:4])
	host := fmt.Sprintf("%d.%d.%d.%d", raw[4], raw[5], raw[6], raw[7])
	return host, port, true
}

// int connect(SOCKET s, const sockaddr *name, int namelen)
func stubConnect(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	sock, ok := lookup(s, call)
	if !ok {
		return fail(s, wsaENotSock, "connect")
	}
	host, port, ok := parseSockaddrIn(cpu.Memory().ReadBytes(call.Arg(1), 16))
	if !ok {
		return fail(s, wsaEAFNoSupport, "connect: unsupported sockaddr")
	}
	sock.Host, sock.Port = host, port
	target := fmt.Sprintf("%s:%d", host, port)

	cfg := s.Config.Winsock
	if !cfg.AutoConnect {
		s.Trace("winsock", "auto-connect disabled, skipping "+target)
		return emulator.Handled(0)
	}
	b, ok := bridgeReady(s)
	if !ok {
		return fail(s, wsaENetDown, "connect "+target+": no backend")
	}

	ctx, cancel := context.WithTimeout(s.Context(), cfg.ConnectTimeout)
	defer cancel()
	if err := b.Open(ctx, sock.id(), host, port); err != nil {
		s.Log.Warn("winsock connect failed", zap.String("target", target), zap.Error(err))
		return fail(s, wsaEConnRefused, "connect "+target)
	}
	sock.Connected = true
	s.Trace("winsock", "connect "+target)
	return emulator.Handled(0)
}

// int send(SOCKET s, const char *buf, int len, int flags)
func stubSend(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	sock, ok := lookup(s, call)
	if !ok {
		return fail(s, wsaENotSock, "send")
	}
	n := int32(call.Arg(2))
	if n <= 0 {
		return emulator.Handled(0)
	}
	b, ok := bridgeReady(s)
	if !ok || !sock.Connected {
		return fail(s, wsaENotConn, "send")
	}
	data := cpu.Memory().ReadBytes(call.Arg(1), int(n))

	ctx, cancel := context.WithTimeout(s.Context(), s.Config.Winsock.ConnectTimeout)
	defer cancel()
	if err := b.Send(ctx, sock.id(), data); err != nil {
		s.Log.Warn("winsock send failed", zap.Uint32("socket", sock.Handle), zap.Error(err))
		return fail(s, wsaEConnReset, "send")
	}
	if s.Config.Winsock.LogTraffic {
		s.Log.Info("winsock send", zap.Uint32("socket", sock.Handle), zap.Binary("data", data))
	}
	s.Trace("winsock", fmt.Sprintf("send n=%d", n))
	return emulator.Handled(uint64(n))
}

// int recv(SOCKET s, char *buf, int len, int flags)
func stubRecv(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	sock, ok := lookup(s, call)
	if !ok {
		return fail(s, wsaENotSock, "recv")
	}
	n := int32(call.Arg(2))
	if n <= 0 {
		return emulator.Handled(0)
	}
	b, ok := bridgeReady(s)
	if !ok || !sock.Connected {
		return fail(s, wsaENotConn, "recv")
	}

	chunk := b.Consume(sock.id(), int(n))
	if len(chunk) == 0 {
		ctx, cancel := context.WithTimeout(s.Context(), s.Config.Winsock.RecvTimeout)
		b.Wait(ctx, sock.id())
		cancel()
		chunk = b.Consume(sock.id(), int(n))
	}
	if len(chunk) == 0 {
		if b.Closed(sock.id()) {
			sock.Connected = false
			s.Trace("winsock", "recv closed")
			return emulator.Handled(0)
		}
		return fail(s, wsaEWouldBlock, "recv")
	}

	cpu.Memory().WriteBytes(call.Arg(1), chunk)
	if s.Config.Winsock.LogTraffic {
		s.Log.Info("winsock recv", zap.Uint32("socket", sock.Handle), zap.Binary("data", chunk))
	}
	s.Trace("winsock", fmt.Sprintf("recv n=%d", len(chunk)))
	return emulator.Handled(uint64(len(chunk)))
}

// int closesocket(SOCKET s)
func stubCloseSocket(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	sock, ok := lookup(s, call)
	if !ok {
		return fail(s, wsaENotSock, "closesocket")
	}
	delete(sockets(s).sockets, sock.Handle)
	if b, ok := bridgeReady(s); ok && sock.Connected {
		ctx, cancel := context.WithTimeout(s.Context(), s.Config.Winsock.ConnectTimeout)
		defer cancel()
		if err := b.Close(ctx, sock.id()); err != nil {
			s.Log.Debug("winsock close failed", zap.Uint32("socket", sock.Handle), zap.Error(err))
		}
	}
	s.Trace("winsock", stubs.FormatPtr("closesocket", uint64(sock.Handle)))
	return emulator.Handled(0)
}

func stubWSAGetLastError(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	return emulator.Handled(uint64(s.LastError))
}

func stubWSASetLastError(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	s.LastError = uint32(call.Arg(0))
	return emulator.Handled(0)
}
