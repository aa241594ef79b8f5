// Package loader reads model files from disk once every trust check has passed.
//
// The loader detects safetensors, PyTorch zip archives, GGUF, and ONNX
// files. Safetensors headers are parsed and each tensor entry is checked
// against the data section. Files with a .zst suffix are decompressed
// transparently.
package loader
