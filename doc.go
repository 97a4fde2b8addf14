// Package tatami is a tiling Wayland compositor that runs directly on a
// DRM/KMS device. Clients connect over a Unix socket and submit shm or
// dmabuf buffers; tatami composes their surfaces with a GLES renderer on a
// GBM swapchain and presents through atomic kernel mode-setting, with input
// sourced from libinput.
package tatami
