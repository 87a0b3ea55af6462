package peripheral

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/eleven-am/voice-capture/internal/shared"
)

// BLEConfig identifies the wearable and the audio characteristic to stream
// from. Either DeviceName or DeviceAddress must be set; when both are set the
// address wins.
type BLEConfig struct {
	DeviceName         string
	DeviceAddress      string
	ServiceUUID        string
	CharacteristicUUID string
}

// BLELink is the production Link backed by the host Bluetooth adapter.
type BLELink struct {
	adapter  *bluetooth.Adapter
	cfg      BLEConfig
	svcUUID  bluetooth.UUID
	charUUID bluetooth.UUID
	log      *slog.Logger

	enableOnce sync.Once
	enableErr  error

	// deliver gates the notification callback: EnableNotifications cannot be
	// torn down portably mid-connection, so Unsubscribe flips this instead.
	deliver atomic.Bool
	handler atomic.Pointer[NotificationHandler]

	mu           sync.Mutex
	device       bluetooth.Device
	char         bluetooth.DeviceCharacteristic
	connected    bool
	disconnected chan struct{}
}

func NewBLELink(cfg BLEConfig, log *slog.Logger) (*BLELink, error) {
	if cfg.DeviceName == "" && cfg.DeviceAddress == "" {
		return nil, fmt.Errorf("ble link: device name or address required")
	}
	svcUUID, err := bluetooth.ParseUUID(cfg.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble link: parse service uuid: %w", err)
	}
	charUUID, err := bluetooth.ParseUUID(cfg.CharacteristicUUID)
	if err != nil {
		return nil, fmt.Errorf("ble link: parse characteristic uuid: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	l := &BLELink{
		adapter:      bluetooth.DefaultAdapter,
		cfg:          cfg,
		svcUUID:      svcUUID,
		charUUID:     charUUID,
		log:          log,
		disconnected: make(chan struct{}),
	}
	l.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.connected {
			l.connected = false
			close(l.disconnected)
		}
	})
	return l, nil
}

func (l *BLELink) Connect(ctx context.Context, timeout time.Duration) error {
	l.enableOnce.Do(func() { l.enableErr = l.adapter.Enable() })
	if l.enableErr != nil {
		return fmt.Errorf("enable adapter: %w", l.enableErr)
	}

	addr, err := l.scan(ctx, timeout)
	if err != nil {
		return err
	}

	device, err := l.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr.String(), err)
	}

	char, err := l.discoverAudioCharacteristic(device)
	if err != nil {
		_ = device.Disconnect()
		return err
	}

	l.mu.Lock()
	l.device = device
	l.char = char
	l.connected = true
	l.disconnected = make(chan struct{})
	l.mu.Unlock()

	l.log.Info("ble device connected", "address", addr.String())
	return nil
}

// scan blocks until the configured device advertises or the timeout expires.
func (l *BLELink) scan(ctx context.Context, timeout time.Duration) (bluetooth.Address, error) {
	found := make(chan bluetooth.Address, 1)
	scanErr := make(chan error, 1)

	go func() {
		err := l.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !l.matches(result) {
				return
			}
			select {
			case found <- result.Address:
			default:
			}
			_ = adapter.StopScan()
		})
		if err != nil {
			scanErr <- err
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case addr := <-found:
		return addr, nil
	case err := <-scanErr:
		return bluetooth.Address{}, fmt.Errorf("scan: %w", err)
	case <-timer.C:
		_ = l.adapter.StopScan()
		return bluetooth.Address{}, fmt.Errorf("scan timeout after %s: %w", timeout, shared.ErrSourceUnavailable)
	case <-ctx.Done():
		_ = l.adapter.StopScan()
		return bluetooth.Address{}, ctx.Err()
	}
}

func (l *BLELink) matches(result bluetooth.ScanResult) bool {
	if l.cfg.DeviceAddress != "" {
		return strings.EqualFold(result.Address.String(), l.cfg.DeviceAddress)
	}
	name := result.LocalName()
	return name != "" && strings.Contains(name, l.cfg.DeviceName)
}

func (l *BLELink) discoverAudioCharacteristic(device bluetooth.Device) (bluetooth.DeviceCharacteristic, error) {
	var zero bluetooth.DeviceCharacteristic
	svcs, err := device.DiscoverServices([]bluetooth.UUID{l.svcUUID})
	if err != nil {
		return zero, fmt.Errorf("discover services: %w", err)
	}
	if len(svcs) == 0 {
		return zero, fmt.Errorf("service %s not found", l.svcUUID.String())
	}
	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{l.charUUID})
	if err != nil {
		return zero, fmt.Errorf("discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		return zero, fmt.Errorf("characteristic %s not found", l.charUUID.String())
	}
	return chars[0], nil
}

func (l *BLELink) Subscribe(fn NotificationHandler) error {
	l.mu.Lock()
	char := l.char
	connected := l.connected
	l.mu.Unlock()
	if !connected {
		return fmt.Errorf("subscribe: not connected")
	}

	l.handler.Store(&fn)
	l.deliver.Store(true)

	err := char.EnableNotifications(func(buf []byte) {
		if !l.deliver.Load() {
			return
		}
		h := l.handler.Load()
		if h == nil {
			return
		}
		// The stack reuses buf across callbacks, so hand out a copy.
		data := make([]byte, len(buf))
		copy(data, buf)
		(*h)(data)
	})
	if err != nil {
		l.deliver.Store(false)
		return fmt.Errorf("enable notifications: %w", err)
	}
	return nil
}

func (l *BLELink) Unsubscribe() error {
	l.deliver.Store(false)
	return nil
}

func (l *BLELink) Close() error {
	l.deliver.Store(false)

	l.mu.Lock()
	device := l.device
	wasConnected := l.connected
	if l.connected {
		l.connected = false
		close(l.disconnected)
	}
	l.mu.Unlock()

	if !wasConnected {
		return nil
	}
	if err := device.Disconnect(); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

func (l *BLELink) Disconnected() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.disconnected
}
