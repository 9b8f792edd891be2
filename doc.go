/*
go-segdist turns the raw output tensors of a YOLO style instance segmentation
model into letterbox corrected, de-duplicated detections with per instance
masks, and estimates the ground distance of each detected object from the
camera using the device tilt angle.

The root package defines the model contract: tensor shapes, the resolved
ModelInfo, the Engine interface and an ONNX Runtime backed Engine.  Geometry
lives in preprocess, decoding/NMS/mask reconstruction in postprocess, the
distance estimator and tilt resolver in distance, and the frame pipeline that
ties it all together in pipeline.

See the cmd/segdist directory for example usage.
*/
package segdist
