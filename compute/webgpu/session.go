package webgpu

import (
	"github.com/google/uuid"
	"github.com/neurlang/gradnet/compute"
	"github.com/openfluke/webgpu/wgpu"
	"github.com/pkg/errors"
)

// session owns one instance/adapter/device/queue chain. Engines hold exactly
// one session and release it when they go away; nothing is shared between
// sessions.
type session struct {
	id       uuid.UUID
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
}

// acquire negotiates a device. A missing WebGPU implementation maps to
// ErrUnsupportedBackend, a refused adapter or device request to ErrNoAdapter.
func acquire() (*session, error) {
	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, compute.ErrUnsupportedBackend
	}

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, errors.Wrapf(compute.ErrNoAdapter, "requesting adapter: %v", err)
	}
	if adapter == nil {
		instance.Release()
		return nil, errors.Wrap(compute.ErrNoAdapter, "adapter request returned nothing")
	}

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrapf(compute.ErrNoAdapter, "requesting device: %v", err)
	}
	if device == nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(compute.ErrNoAdapter, "device request returned nothing")
	}

	return &session{
		id:       uuid.New(),
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    device.GetQueue(),
	}, nil
}

// label prefixes buffer and pipeline names with the session identity so
// captures from concurrent sessions stay tellable apart.
func (s *session) label(name string) string {
	return "gradnet_" + s.id.String()[:8] + "_" + name
}

// await blocks until a MapRead mapping of buf lands, driving the device poll
// loop while it waits.
func (s *session) await(buf *wgpu.Buffer) error {
	done := make(chan wgpu.BufferMapAsyncStatus, 1)
	err := buf.MapAsync(wgpu.MapModeRead, 0, buf.GetSize(),
		func(status wgpu.BufferMapAsyncStatus) {
			done <- status
		})
	if err != nil {
		return err
	}
	for {
		s.device.Poll(true, nil)
		select {
		case status := <-done:
			if status != wgpu.BufferMapAsyncStatusSuccess {
				return errors.Errorf("buffer mapping failed: %v", status)
			}
			return nil
		default:
		}
	}
}

// release tears the chain down in reverse acquisition order. The queue
// belongs to the device and has no life of its own.
func (s *session) release() {
	s.queue = nil
	if s.device != nil {
		s.device.Release()
		s.device = nil
	}
	if s.adapter != nil {
		s.adapter.Release()
		s.adapter = nil
	}
	if s.instance != nil {
		s.instance.Release()
		s.instance = nil
	}
}
