// Package shadow implements the shadow page-table engine that virtualizes
// the graphics translation tables of a GPU for multiple vGPUs. The device
// keeps one Engine; each guest attaches as a VGPU. Guest-maintained table
// pages are mirrored into shadow pages whose entries always carry host
// frame numbers, so the hardware only ever walks shadow tables.
package shadow
