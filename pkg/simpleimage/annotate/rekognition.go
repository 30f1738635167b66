package annotate

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

// Default detection limits.
const (
	DefaultMaxLabels     = 10
	DefaultMinConfidence = 75
)

// RekognitionAPI is the subset of the Rekognition client used for detection.
type RekognitionAPI interface {
	DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
}

// RekognitionConfig holds the detection limits.
type RekognitionConfig struct {
	MaxLabels     int32
	MinConfidence float32
}

// RekognitionDetector detects labels with Amazon Rekognition.
type RekognitionDetector struct {
	client RekognitionAPI
	config RekognitionConfig
}

// NewRekognitionDetector creates a detector. Zero limits take the defaults.
func NewRekognitionDetector(client RekognitionAPI, config RekognitionConfig) (*RekognitionDetector, error) {
	if client == nil {
		return nil, errors.New("rekognition client is required")
	}
	if config.MaxLabels <= 0 {
		config.MaxLabels = DefaultMaxLabels
	}
	if config.MinConfidence <= 0 {
		config.MinConfidence = DefaultMinConfidence
	}
	if config.MinConfidence > 100 {
		return nil, fmt.Errorf("min confidence %v exceeds 100", config.MinConfidence)
	}
	return &RekognitionDetector{client: client, config: config}, nil
}

func (d *RekognitionDetector) DetectLabels(ctx context.Context, image []byte) ([]Label, error) {
	out, err := d.client.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image:         &types.Image{Bytes: image},
		MaxLabels:     aws.Int32(d.config.MaxLabels),
		MinConfidence: aws.Float32(d.config.MinConfidence),
	})
	if err != nil {
		return nil, fmt.Errorf("rekognition detect labels: %w", err)
	}

	labels := make([]Label, 0, len(out.Labels))
	for _, l := range out.Labels {
		name := aws.ToString(l.Name)
		if name == "" {
			continue
		}
		labels = append(labels, Label{Name: name, Confidence: float64(aws.ToFloat32(l.Confidence))})
	}
	return labels, nil
}
