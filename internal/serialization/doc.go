// Package serialization reads and writes the .born tensor container used
// for model checkpoints and backbone weight files.
//
//	Layout (all integers little endian):
//	  0x00  [4]  magic "BORN"
//	  0x04  [4]  format version (uint32)
//	  0x08  [4]  flags (uint32)
//	  0x0C  [4]  reserved
//	  0x10  [8]  header size (uint64)
//	  0x18  [8]  data size (uint64)
//	  0x20  [32] SHA-256 of the data section
//	  0x40  JSON header, zero padded to a 64-byte boundary
//	  ...   tensor data, tensors in name order
//
// Tensors are stored as float32 or, with WriteOptions.Half, as IEEE 754
// half precision. Reading always yields float32 tensors.
//
// Example:
//
//	err := serialization.WriteFile("ckpt.born", nn.StateDict(model), serialization.Header{
//	    ModelType: "captioner",
//	}, serialization.WriteOptions{})
//
//	tensors, header, err := serialization.ReadFile("ckpt.born")
package serialization
