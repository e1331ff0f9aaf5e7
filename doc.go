// Package armlink drives a two-arm ESP32 servo rig from the operator's body pose.
//
// A camera frame goes through a pose model, each arm's wrist offset is classified into a
// direction code, and the pair of codes is combined into a rig command. Commands reach the
// rig over a plain TCP line protocol. Keys take over in manual mode.
//
// # Installation
//
//	go install github.com/gwillem/armlink/cmd/armlink@latest
//
// # Usage
//
// Configure the connection and, on the rig side, calibrate the servos:
//
//	armlink setup
//
// Run the command server next to the servos (or on a bench with --dry-run):
//
//	armlink rig
//
// Then start teleoperation on the operator machine:
//
//	armlink teleoperate
//
// # Packages
//
//   - cmd/armlink: CLI with setup, teleoperate, rig and scan commands
//   - pkg/gesture: arm codes and the wrist offset classifier
//   - pkg/pose: body landmarks, frame source and pose oracle interfaces
//   - pkg/vision: OpenCV camera capture and OpenPose estimation
//   - pkg/command: rig commands and their wire tokens
//   - pkg/mailbox: single-slot latest-value channel
//   - pkg/teleop: arbitration and the teleoperation controller
//   - pkg/link: TCP transport with retry policies
//   - pkg/peer: rig-side command server
//   - pkg/robot: servo rig driven by commands, calibration and configuration
//   - pkg/config: armlink.json
package armlink
