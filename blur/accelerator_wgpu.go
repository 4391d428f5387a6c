//go:build !nogpu

package blur

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/sirupsen/logrus"

	// Registers the Vulkan backend with hal.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// convolveTapShaderSource accumulates one kernel tap per dispatch: tap 0
// assigns, later taps add. Indices are clamped to the grid, which is the
// same as reading an edge-replicated copy. One pass per tap avoids loops in
// the shader, which the naga SPIR-V backend does not execute reliably.
const convolveTapShaderSource = `
struct Params {
    width: u32,
    height: u32,
    ksize: u32,
    tap: u32,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var<storage, read> weights: array<f32>;
@group(0) @binding(2) var<storage, read> src: array<f32>;
@group(0) @binding(3) var<storage, read_write> dst: array<f32>;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    if (gid.x >= params.width || gid.y >= params.height) {
        return;
    }
    let half = i32(params.ksize / 2u);
    let ky = i32(params.tap / params.ksize);
    let kx = i32(params.tap % params.ksize);
    let sy = clamp(i32(gid.y) + ky - half, 0, i32(params.height) - 1);
    let sx = clamp(i32(gid.x) + kx - half, 0, i32(params.width) - 1);
    let v = src[u32(sy) * params.width + u32(sx)] * weights[params.tap];
    let i = gid.y * params.width + gid.x;
    if (params.tap == 0u) {
        dst[i] = v;
    } else {
        dst[i] = dst[i] + v;
    }
}
`

const (
	workgroupSize  = 8
	tapParamsSize  = 16
	pollInterval   = 200 * time.Microsecond
	idleWaitWindow = time.Second
)

// acceleratorPresent reports whether a discrete or integrated GPU adapter is
// reachable through Vulkan. The instance opened for detection is destroyed before returning.
func acceleratorPresent() bool {
	instance, adapter, err := openInstance()
	if err != nil {
		logrus.Debugf("Accelerator detection: %v", err)
		return false
	}
	logrus.Debugf("Accelerator detection found %s", adapter.Info.Name)
	instance.Destroy()
	return true
}

func openInstance() (hal.Instance, *hal.ExposedAdapter, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, nil, fmt.Errorf("vulkan backend not available: %w", errNoAccelerator)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, nil, fmt.Errorf("create instance: %v: %w", err, errNoAccelerator)
	}
	adapters := instance.EnumerateAdapters(nil)
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			return instance, &adapters[i], nil
		}
	}
	instance.Destroy()
	return nil, nil, fmt.Errorf("no GPU adapters among %d found: %w", len(adapters), errNoAccelerator)
}

// inFlight is an encoder whose command buffer the queue may still be
// executing. Both are recycled once the submission completes.
type inFlight struct {
	encoder hal.CommandEncoder
	cmd     hal.CommandBuffer
}

// gpuExecutor runs the convolution as a chain of compute passes on a Vulkan
// device, one pass per kernel tap, in a single command buffer.
type gpuExecutor struct {
	fenceTimeout time.Duration

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	weightsBuf hal.Buffer
	srcBuf     hal.Buffer
	dstBuf     hal.Buffer
	stagingBuf hal.Buffer
	tapBufs    []hal.Buffer
	bindGroups []hal.BindGroup

	pending    []inFlight
	pendingIdx uint64

	// nanMask marks outputs whose window holds a NaN input. The device only
	// ever sees finite inputs.
	nanMask []bool

	width, height uint32
	gridBytes     uint64
}

func newAcceleratorExecutor(opts Options) (executor, error) {
	instance, adapter, err := openInstance()
	if err != nil {
		return nil, err
	}
	openDev, err := adapter.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device: %w", err)
	}
	e := &gpuExecutor{
		fenceTimeout: opts.FenceTimeout,
		instance:     instance,
		device:       openDev.Device,
		queue:        openDev.Queue,
	}
	if err := e.createPipeline(); err != nil {
		e.release()
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	logrus.Infof("Using %s (%s)", Accelerator, adapter.Info.Name)
	return e, nil
}

func (e *gpuExecutor) createPipeline() error {
	shader, err := e.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "blur_tap",
		Source: hal.ShaderSource{WGSL: convolveTapShaderSource},
	})
	if err != nil {
		return fmt.Errorf("compile blur_tap shader: %w", err)
	}
	e.shader = shader

	bindLayout, err := e.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "blur_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 3, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	e.bindLayout = bindLayout

	pipeLayout, err := e.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "blur_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{e.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	e.pipeLayout = pipeLayout

	pipeline, err := e.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "blur_pipeline", Layout: e.pipeLayout,
		Compute: hal.ComputeState{Module: e.shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	e.pipeline = pipeline
	return nil
}

// prepare uploads the grid and kernel and builds one bind group per tap.
// NaN inputs are uploaded as zero and restored from nanMask on readback.
func (e *gpuExecutor) prepare(g Grid, k Kernel) error {
	e.width, e.height = uint32(g.Width), uint32(g.Height) //nolint:gosec // validated positive
	e.gridBytes = uint64(len(g.Data)) * 4
	weightBytes := uint64(len(k.Weights)) * 4

	src := g
	if e.nanMask = nanFootprint(g, k.Radius()); e.nanMask != nil {
		src = g.Clone()
		for i, v := range src.Data {
			if math.IsNaN(float64(v)) {
				src.Data[i] = 0
			}
		}
	}

	var err error
	if e.weightsBuf, err = e.createBuffer("blur_weights", weightBytes,
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	if e.srcBuf, err = e.createBuffer("blur_src", e.gridBytes,
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	if e.dstBuf, err = e.createBuffer("blur_dst", e.gridBytes,
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopySrc); err != nil {
		return err
	}
	if e.stagingBuf, err = e.createBuffer("blur_staging", e.gridBytes,
		gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	if err := e.queue.WriteBuffer(e.weightsBuf, 0, float32sToBytes(k.Weights)); err != nil {
		return fmt.Errorf("upload weights: %w", err)
	}
	if err := e.queue.WriteBuffer(e.srcBuf, 0, float32sToBytes(src.Data)); err != nil {
		return fmt.Errorf("upload grid: %w", err)
	}

	taps := len(k.Weights)
	for tap := 0; tap < taps; tap++ {
		ub, err := e.createBuffer("blur_tap_params", tapParamsSize,
			gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
		if err != nil {
			return fmt.Errorf("tap %d: %w", tap, err)
		}
		e.tapBufs = append(e.tapBufs, ub)
		params := tapParams(e.width, e.height, uint32(k.Size), uint32(tap)) //nolint:gosec // small
		if err := e.queue.WriteBuffer(ub, 0, params); err != nil {
			return fmt.Errorf("upload tap %d params: %w", tap, err)
		}

		bg, err := e.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label: "blur_bind", Layout: e.bindLayout,
			Entries: []gputypes.BindGroupEntry{
				{Binding: 0, Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: tapParamsSize}},
				{Binding: 1, Resource: gputypes.BufferBinding{Buffer: e.weightsBuf.NativeHandle(), Offset: 0, Size: weightBytes}},
				{Binding: 2, Resource: gputypes.BufferBinding{Buffer: e.srcBuf.NativeHandle(), Offset: 0, Size: e.gridBytes}},
				{Binding: 3, Resource: gputypes.BufferBinding{Buffer: e.dstBuf.NativeHandle(), Offset: 0, Size: e.gridBytes}},
			},
		})
		if err != nil {
			return fmt.Errorf("create bind group %d: %w", tap, err)
		}
		e.bindGroups = append(e.bindGroups, bg)
	}
	return nil
}

func (e *gpuExecutor) createBuffer(label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := e.device.CreateBuffer(&hal.BufferDescriptor{Label: label, Size: size, Usage: usage})
	if err != nil {
		return nil, fmt.Errorf("create %s buffer: %w", label, err)
	}
	return buf, nil
}

// encode records one command buffer with fn and submits it without waiting.
func (e *gpuExecutor) encode(label string, fn func(hal.CommandEncoder)) error {
	encoder, err := e.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		encoder.Destroy()
		return fmt.Errorf("begin encoding: %w", err)
	}
	fn(encoder)
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.Destroy()
		return fmt.Errorf("end encoding: %w", err)
	}
	idx, err := e.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		encoder.ResetAll([]hal.CommandBuffer{cmdBuf})
		encoder.Destroy()
		return fmt.Errorf("submit: %w", err)
	}
	e.pending = append(e.pending, inFlight{encoder: encoder, cmd: cmdBuf})
	e.pendingIdx = idx
	return nil
}

// run encodes every tap pass and submits without waiting.
func (e *gpuExecutor) run() error {
	groupsX := (e.width + workgroupSize - 1) / workgroupSize
	groupsY := (e.height + workgroupSize - 1) / workgroupSize
	return e.encode("blur", func(encoder hal.CommandEncoder) {
		for _, bg := range e.bindGroups {
			pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "blur_tap_pass"})
			pass.SetPipeline(e.pipeline)
			pass.SetBindGroup(0, bg, nil)
			pass.Dispatch(groupsX, groupsY, 1)
			pass.End()
		}
	})
}

// synchronize blocks until the queue reports the last submission complete.
// With no FenceTimeout configured it waits for as long as the device takes.
func (e *gpuExecutor) synchronize() error {
	if len(e.pending) == 0 {
		return nil
	}
	if err := waitSubmission(e.queue, e.pendingIdx, e.fenceTimeout, e.device.WaitIdle); err != nil {
		return err
	}
	e.recycle()
	return nil
}

func (e *gpuExecutor) recycle() {
	for _, f := range e.pending {
		f.encoder.ResetAll([]hal.CommandBuffer{f.cmd})
		f.encoder.Destroy()
	}
	e.pending = e.pending[:0]
}

type completionPoller interface {
	PollCompleted() uint64
}

// waitSubmission returns once q has completed submission idx. A positive
// timeout polls until the deadline; otherwise waitIdle blocks until the
// device drains.
func waitSubmission(q completionPoller, idx uint64, timeout time.Duration, waitIdle func() error) error {
	if q.PollCompleted() >= idx {
		return nil
	}
	if timeout <= 0 {
		if err := waitIdle(); err != nil {
			return fmt.Errorf("wait for GPU: %w", err)
		}
		return nil
	}
	deadline := time.Now().Add(timeout)
	for q.PollCompleted() < idx {
		if time.Now().After(deadline) {
			return fmt.Errorf("wait for GPU: submission %d not complete after %v", idx, timeout)
		}
		time.Sleep(pollInterval)
	}
	return nil
}

// result copies the output to the staging buffer, waits for the copy and
// reads the mapped staging memory back to host memory.
func (e *gpuExecutor) result() (Grid, error) {
	err := e.encode("blur_readback", func(encoder hal.CommandEncoder) {
		encoder.CopyBufferToBuffer(e.dstBuf, e.stagingBuf, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: e.gridBytes},
		})
	})
	if err != nil {
		return Grid{}, err
	}
	if err := e.synchronize(); err != nil {
		return Grid{}, err
	}

	mapping, err := e.device.MapBuffer(e.stagingBuf, 0, e.gridBytes)
	if err != nil {
		return Grid{}, fmt.Errorf("map staging buffer: %w", err)
	}
	out := NewGrid(int(e.width), int(e.height))
	bytesToFloat32s(unsafe.Slice((*byte)(mapping.Ptr), e.gridBytes), out.Data)
	if err := e.device.UnmapBuffer(e.stagingBuf); err != nil {
		return Grid{}, fmt.Errorf("unmap staging buffer: %w", err)
	}
	applyNaNMask(out, e.nanMask)
	return out, nil
}

func applyNaNMask(g Grid, mask []bool) {
	if mask == nil {
		return
	}
	nan := float32(math.NaN())
	for i, m := range mask {
		if m {
			g.Data[i] = nan
		}
	}
}

func (e *gpuExecutor) release() {
	if e.device == nil {
		return
	}
	if len(e.pending) > 0 {
		for {
			err := waitSubmission(e.queue, e.pendingIdx, idleWaitWindow, e.device.WaitIdle)
			if err == nil {
				break
			}
			logrus.Warnf("Releasing GPU with work in flight: %v", err)
		}
		e.recycle()
	}
	for _, bg := range e.bindGroups {
		e.device.DestroyBindGroup(bg)
	}
	for _, ub := range e.tapBufs {
		e.device.DestroyBuffer(ub)
	}
	for _, buf := range []hal.Buffer{e.weightsBuf, e.srcBuf, e.dstBuf, e.stagingBuf} {
		if buf != nil {
			e.device.DestroyBuffer(buf)
		}
	}
	if e.pipeline != nil {
		e.device.DestroyComputePipeline(e.pipeline)
	}
	if e.pipeLayout != nil {
		e.device.DestroyPipelineLayout(e.pipeLayout)
	}
	if e.bindLayout != nil {
		e.device.DestroyBindGroupLayout(e.bindLayout)
	}
	if e.shader != nil {
		e.device.DestroyShaderModule(e.shader)
	}
	e.device.Destroy()
	e.device, e.queue = nil, nil
	if e.instance != nil {
		e.instance.Destroy()
		e.instance = nil
	}
}

func tapParams(width, height, size, tap uint32) []byte {
	out := make([]byte, tapParamsSize)
	binary.LittleEndian.PutUint32(out[0:], width)
	binary.LittleEndian.PutUint32(out[4:], height)
	binary.LittleEndian.PutUint32(out[8:], size)
	binary.LittleEndian.PutUint32(out[12:], tap)
	return out
}

func float32sToBytes(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32s(raw []byte, dst []float32) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
}
