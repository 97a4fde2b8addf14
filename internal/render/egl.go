//go:build linux && cgo

package render

/*
#cgo pkg-config: egl glesv2
#include <stdlib.h>
#include <EGL/egl.h>
#include <EGL/eglext.h>
#include <GLES3/gl3.h>
#include <GLES2/gl2ext.h>

static PFNEGLGETPLATFORMDISPLAYEXTPROC fnGetPlatformDisplay;
static PFNEGLCREATEIMAGEKHRPROC fnCreateImage;
static PFNEGLDESTROYIMAGEKHRPROC fnDestroyImage;
static PFNGLEGLIMAGETARGETTEXTURE2DOESPROC fnImageTargetTexture;

static void loadExtensions(void) {
	fnGetPlatformDisplay = (PFNEGLGETPLATFORMDISPLAYEXTPROC)eglGetProcAddress("eglGetPlatformDisplayEXT");
	fnCreateImage = (PFNEGLCREATEIMAGEKHRPROC)eglGetProcAddress("eglCreateImageKHR");
	fnDestroyImage = (PFNEGLDESTROYIMAGEKHRPROC)eglGetProcAddress("eglDestroyImageKHR");
	fnImageTargetTexture = (PFNGLEGLIMAGETARGETTEXTURE2DOESPROC)eglGetProcAddress("glEGLImageTargetTexture2DOES");
}

static EGLDisplay getGBMDisplay(void *gbm) {
	if (fnGetPlatformDisplay == NULL) {
		return eglGetDisplay((EGLNativeDisplayType)gbm);
	}
	return fnGetPlatformDisplay(EGL_PLATFORM_GBM_KHR, gbm, NULL);
}

static EGLImageKHR createDmabufImage(EGLDisplay dpy, const EGLint *attribs) {
	return fnCreateImage(dpy, EGL_NO_CONTEXT, EGL_LINUX_DMA_BUF_EXT, NULL, attribs);
}

static void destroyImage(EGLDisplay dpy, EGLImageKHR img) {
	fnDestroyImage(dpy, img);
}

static void bindImageTexture(EGLImageKHR img) {
	fnImageTargetTexture(GL_TEXTURE_2D, img);
}

// EGLNativeWindowType differs between platform headers; cast on the C side.
static EGLSurface createWindowSurface(EGLDisplay dpy, EGLConfig cfg, void *win) {
	return eglCreateWindowSurface(dpy, cfg, (EGLNativeWindowType)win, NULL);
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/tatami-wm/tatami/internal/geom"
)

// quad shader: the vertex stage maps an output-pixel rectangle to clip
// space, the fragment stage samples the surface texture.
const (
	vertexSrc = `#version 300 es
uniform vec4 u_rect;
uniform vec2 u_screen;
out vec2 v_uv;
void main() {
	vec2 corner = vec2(float(gl_VertexID & 1), float((gl_VertexID >> 1) & 1));
	v_uv = corner;
	vec2 px = u_rect.xy + corner * u_rect.zw;
	vec2 ndc = px / u_screen * 2.0 - 1.0;
	gl_Position = vec4(ndc.x, -ndc.y, 0.0, 1.0);
}` + "\x00"

	fragmentSrc = `#version 300 es
precision mediump float;
uniform sampler2D u_tex;
in vec2 v_uv;
out vec4 outColor;
void main() {
	outColor = texture(u_tex, v_uv);
}` + "\x00"
)

// EGL is the Renderer implementation drawing into a GBM surface with
// GLES3. Dmabuf imports go through EGLImage.
type EGL struct {
	display C.EGLDisplay
	context C.EGLContext
	surface C.EGLSurface

	program    C.GLuint
	rectLoc    C.GLint
	screenLoc  C.GLint
	screenSize geom.Point

	nextTexture Texture
	textures    map[Texture]C.GLuint
	images      map[Texture]C.EGLImageKHR
}

// NewEGL brings up EGL on a GBM device and surface and compiles the quad
// pipeline.
func NewEGL(gbmDevice, gbmSurface unsafe.Pointer, size geom.Point) (*EGL, error) {
	C.loadExtensions()

	display := C.getGBMDisplay(gbmDevice)
	if display == nil {
		return nil, fmt.Errorf("render: no EGL display: %w", ErrContextLost)
	}

	var major, minor C.EGLint
	if C.eglInitialize(display, &major, &minor) == C.EGL_FALSE {
		return nil, fmt.Errorf("render: eglInitialize: %w", ErrContextLost)
	}
	if C.eglBindAPI(C.EGL_OPENGL_ES_API) == C.EGL_FALSE {
		return nil, fmt.Errorf("render: eglBindAPI: %w", ErrContextLost)
	}

	configAttribs := []C.EGLint{
		C.EGL_RED_SIZE, 8,
		C.EGL_GREEN_SIZE, 8,
		C.EGL_BLUE_SIZE, 8,
		C.EGL_ALPHA_SIZE, 0,
		C.EGL_RENDERABLE_TYPE, C.EGL_OPENGL_ES3_BIT,
		C.EGL_SURFACE_TYPE, C.EGL_WINDOW_BIT,
		C.EGL_NONE,
	}

	var config C.EGLConfig
	var numConfigs C.EGLint
	if C.eglChooseConfig(display, &configAttribs[0], &config, 1, &numConfigs) == C.EGL_FALSE || numConfigs == 0 {
		return nil, fmt.Errorf("render: no EGL config: %w", ErrContextLost)
	}

	contextAttribs := []C.EGLint{
		C.EGL_CONTEXT_MAJOR_VERSION, 3,
		C.EGL_NONE,
	}
	context := C.eglCreateContext(display, config, nil, &contextAttribs[0])
	if context == nil {
		return nil, fmt.Errorf("render: eglCreateContext: %w", ErrContextLost)
	}

	surface := C.createWindowSurface(display, config, gbmSurface)
	if surface == nil {
		return nil, fmt.Errorf("render: eglCreateWindowSurface: %w", ErrContextLost)
	}

	if C.eglMakeCurrent(display, surface, surface, context) == C.EGL_FALSE {
		return nil, fmt.Errorf("render: eglMakeCurrent: %w", ErrContextLost)
	}

	r := &EGL{
		display:    display,
		context:    context,
		surface:    surface,
		screenSize: size,
		nextTexture: 1,
		textures:   make(map[Texture]C.GLuint),
		images:     make(map[Texture]C.EGLImageKHR),
	}

	if err := r.buildProgram(); err != nil {
		return nil, err
	}

	C.glEnable(C.GL_BLEND)
	C.glBlendFunc(C.GL_ONE, C.GL_ONE_MINUS_SRC_ALPHA)
	C.glViewport(0, 0, C.GLsizei(size.X), C.GLsizei(size.Y))

	return r, nil
}

// buildProgram compiles and links the quad shaders.
func (r *EGL) buildProgram() error {
	compile := func(kind C.GLenum, src string) (C.GLuint, error) {
		shader := C.glCreateShader(kind)
		csrc := C.CString(src)
		defer C.free(unsafe.Pointer(csrc))

		C.glShaderSource(shader, 1, &csrc, nil)
		C.glCompileShader(shader)

		var status C.GLint
		C.glGetShaderiv(shader, C.GL_COMPILE_STATUS, &status)
		if status == 0 {
			return 0, fmt.Errorf("render: shader compile failed: %w", ErrContextLost)
		}
		return shader, nil
	}

	vs, err := compile(C.GL_VERTEX_SHADER, vertexSrc)
	if err != nil {
		return err
	}
	fs, err := compile(C.GL_FRAGMENT_SHADER, fragmentSrc)
	if err != nil {
		return err
	}

	r.program = C.glCreateProgram()
	C.glAttachShader(r.program, vs)
	C.glAttachShader(r.program, fs)
	C.glLinkProgram(r.program)
	C.glDeleteShader(vs)
	C.glDeleteShader(fs)

	var status C.GLint
	C.glGetProgramiv(r.program, C.GL_LINK_STATUS, &status)
	if status == 0 {
		return fmt.Errorf("render: program link failed: %w", ErrContextLost)
	}

	rectName := C.CString("u_rect")
	screenName := C.CString("u_screen")
	defer C.free(unsafe.Pointer(rectName))
	defer C.free(unsafe.Pointer(screenName))

	r.rectLoc = C.glGetUniformLocation(r.program, rectName)
	r.screenLoc = C.glGetUniformLocation(r.program, screenName)
	return nil
}

// UploadShm implements Renderer.
func (r *EGL) UploadShm(existing Texture, pool []byte, offset, stride int32, size geom.Point, format uint32) (Texture, error) {
	end := int64(offset) + int64(stride)*int64(size.Y)
	if offset < 0 || end > int64(len(pool)) {
		return NoTexture, fmt.Errorf("%w: shm view outside pool", ErrUploadFailed)
	}

	tex := existing
	var gltex C.GLuint
	if tex == NoTexture {
		C.glGenTextures(1, &gltex)
		tex = r.nextTexture
		r.nextTexture++
		r.textures[tex] = gltex
	} else {
		gltex = r.textures[tex]
	}

	C.glBindTexture(C.GL_TEXTURE_2D, gltex)
	C.glTexParameteri(C.GL_TEXTURE_2D, C.GL_TEXTURE_MIN_FILTER, C.GL_LINEAR)
	C.glTexParameteri(C.GL_TEXTURE_2D, C.GL_TEXTURE_MAG_FILTER, C.GL_LINEAR)
	C.glPixelStorei(C.GL_UNPACK_ROW_LENGTH, C.GLint(stride/4))

	// ARGB8888/XRGB8888 little-endian is BGRA in GL terms.
	C.glTexImage2D(C.GL_TEXTURE_2D, 0, C.GL_BGRA_EXT,
		C.GLsizei(size.X), C.GLsizei(size.Y), 0,
		C.GL_BGRA_EXT, C.GL_UNSIGNED_BYTE, unsafe.Pointer(&pool[offset]))
	C.glPixelStorei(C.GL_UNPACK_ROW_LENGTH, 0)

	if C.glGetError() != C.GL_NO_ERROR {
		return NoTexture, ErrUploadFailed
	}
	return tex, nil
}

// ImportDmabuf implements Renderer.
func (r *EGL) ImportDmabuf(size geom.Point, fourcc uint32, modifier uint64, planes []DmabufPlane) (Texture, error) {
	attribs := []C.EGLint{
		C.EGL_WIDTH, C.EGLint(size.X),
		C.EGL_HEIGHT, C.EGLint(size.Y),
		C.EGL_LINUX_DRM_FOURCC_EXT, C.EGLint(fourcc),
	}

	planeAttribs := [][3]C.EGLint{
		{C.EGL_DMA_BUF_PLANE0_FD_EXT, C.EGL_DMA_BUF_PLANE0_OFFSET_EXT, C.EGL_DMA_BUF_PLANE0_PITCH_EXT},
		{C.EGL_DMA_BUF_PLANE1_FD_EXT, C.EGL_DMA_BUF_PLANE1_OFFSET_EXT, C.EGL_DMA_BUF_PLANE1_PITCH_EXT},
		{C.EGL_DMA_BUF_PLANE2_FD_EXT, C.EGL_DMA_BUF_PLANE2_OFFSET_EXT, C.EGL_DMA_BUF_PLANE2_PITCH_EXT},
		{C.EGL_DMA_BUF_PLANE3_FD_EXT, C.EGL_DMA_BUF_PLANE3_OFFSET_EXT, C.EGL_DMA_BUF_PLANE3_PITCH_EXT},
	}
	modifierAttribs := [][2]C.EGLint{
		{C.EGL_DMA_BUF_PLANE0_MODIFIER_LO_EXT, C.EGL_DMA_BUF_PLANE0_MODIFIER_HI_EXT},
		{C.EGL_DMA_BUF_PLANE1_MODIFIER_LO_EXT, C.EGL_DMA_BUF_PLANE1_MODIFIER_HI_EXT},
		{C.EGL_DMA_BUF_PLANE2_MODIFIER_LO_EXT, C.EGL_DMA_BUF_PLANE2_MODIFIER_HI_EXT},
		{C.EGL_DMA_BUF_PLANE3_MODIFIER_LO_EXT, C.EGL_DMA_BUF_PLANE3_MODIFIER_HI_EXT},
	}

	for i, plane := range planes {
		if i >= len(planeAttribs) {
			break
		}
		attribs = append(attribs,
			planeAttribs[i][0], C.EGLint(plane.FD),
			planeAttribs[i][1], C.EGLint(plane.Offset),
			planeAttribs[i][2], C.EGLint(plane.Stride),
		)
		if modifier != 0 {
			attribs = append(attribs,
				modifierAttribs[i][0], C.EGLint(modifier&0xFFFFFFFF),
				modifierAttribs[i][1], C.EGLint(modifier>>32),
			)
		}
	}
	attribs = append(attribs, C.EGL_NONE)

	img := C.createDmabufImage(r.display, &attribs[0])
	if img == nil {
		return NoTexture, fmt.Errorf("%w: dmabuf EGLImage", ErrUploadFailed)
	}

	var gltex C.GLuint
	C.glGenTextures(1, &gltex)
	C.glBindTexture(C.GL_TEXTURE_2D, gltex)
	C.glTexParameteri(C.GL_TEXTURE_2D, C.GL_TEXTURE_MIN_FILTER, C.GL_LINEAR)
	C.glTexParameteri(C.GL_TEXTURE_2D, C.GL_TEXTURE_MAG_FILTER, C.GL_LINEAR)
	C.bindImageTexture(img)

	tex := r.nextTexture
	r.nextTexture++
	r.textures[tex] = gltex
	r.images[tex] = img
	return tex, nil
}

// DrawTexturedQuad implements Renderer.
func (r *EGL) DrawTexturedQuad(tex Texture, dst geom.Rect) {
	gltex, ok := r.textures[tex]
	if !ok {
		return
	}

	C.glUseProgram(r.program)
	C.glUniform4f(r.rectLoc,
		C.GLfloat(dst.Pos.X), C.GLfloat(dst.Pos.Y),
		C.GLfloat(dst.Size.X), C.GLfloat(dst.Size.Y))
	C.glUniform2f(r.screenLoc, C.GLfloat(r.screenSize.X), C.GLfloat(r.screenSize.Y))

	C.glActiveTexture(C.GL_TEXTURE0)
	C.glBindTexture(C.GL_TEXTURE_2D, gltex)
	C.glDrawArrays(C.GL_TRIANGLE_STRIP, 0, 4)
}

// BeginFrame implements Renderer.
func (r *EGL) BeginFrame() {
	C.eglMakeCurrent(r.display, r.surface, r.surface, r.context)
	C.glClearColor(0, 0, 0, 1)
	C.glClear(C.GL_COLOR_BUFFER_BIT)
}

// EndFrame implements Renderer.
func (r *EGL) EndFrame() error {
	if C.eglSwapBuffers(r.display, r.surface) == C.EGL_FALSE {
		return ErrContextLost
	}
	return nil
}

// ReleaseTexture implements Renderer.
func (r *EGL) ReleaseTexture(tex Texture) {
	gltex, ok := r.textures[tex]
	if !ok {
		return
	}
	C.glDeleteTextures(1, &gltex)
	delete(r.textures, tex)

	if img, ok := r.images[tex]; ok {
		C.destroyImage(r.display, img)
		delete(r.images, tex)
	}
}
