package hdf5writer

import (
	"fmt"

	"github.com/jmbenlloch/go-hdf5"
)

type EventDataHDF5 struct {
	evt_number int32
	thread_id  int32
	timestamp  [STRLEN]byte
}

type DigitizedHDF5 struct {
	evt_number int32
	detector   [STRLEN]byte
	hitn       int32
	variable   [STRLEN]byte
	value      float64
}

type TrueInfoHDF5 struct {
	evt_number int32
	detector   [STRLEN]byte
	hitn       int32
	variable   [STRLEN]byte
	value      float64
}

type TrueInfoStringHDF5 struct {
	evt_number int32
	detector   [STRLEN]byte
	hitn       int32
	variable   [STRLEN]byte
	value      [STRLEN]byte
}

type FrameHeaderHDF5 struct {
	frame_id       int32
	frame_duration float64
	n_payloads     int32
}

type PayloadHDF5 struct {
	frame_id int32
	crate    int32
	slot     int32
	channel  int32
	charge   int32
	time     int32
}

const STRLEN = 32

func convertToHdf5String(s string) [STRLEN]byte {
	var byteArray [STRLEN]byte
	copy(byteArray[:], s)
	return byteArray
}

func openFile(fname string) (*hdf5.File, error) {
	f, err := hdf5.CreateFile(fname, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, fmt.Errorf("error creating %s: %w", fname, err)
	}
	return f, nil
}

func createGroup(file *hdf5.File, groupName string) (*hdf5.Group, error) {
	g, err := file.CreateGroup(groupName)
	if err != nil {
		return nil, fmt.Errorf("error creating group %s: %w", groupName, err)
	}
	return g, nil
}

func createTable(group *hdf5.Group, name string, datatype interface{}, compressionLevel int) (*hdf5.Dataset, error) {
	dims := []uint{0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims)}
	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, fmt.Errorf("error creating dataspace of %s: %w", name, err)
	}
	defer fileSpace.Close()

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, fmt.Errorf("error creating property list of %s: %w", name, err)
	}
	defer plist.Close()

	chunks := []uint{32768}
	if err := plist.SetChunk(chunks); err != nil {
		return nil, fmt.Errorf("error setting chunks of %s: %w", name, err)
	}
	if compressionLevel > 0 {
		if err := plist.SetDeflate(compressionLevel); err != nil {
			return nil, fmt.Errorf("error setting compression of %s: %w", name, err)
		}
	}

	dtype, err := hdf5.NewDatatypeFromValue(datatype)
	if err != nil {
		return nil, fmt.Errorf("error creating datatype of %s: %w", name, err)
	}

	dset, err := group.CreateDatasetWith(name, dtype, fileSpace, plist)
	if err != nil {
		return nil, fmt.Errorf("error creating table %s: %w", name, err)
	}
	return dset, nil
}

// writeArrayToTable appends data at the end of a one dimensional table.
func writeArrayToTable[T any](dataset *hdf5.Dataset, data *[]T) error {
	length := uint(len(*data))
	if length == 0 {
		return nil
	}
	dims := []uint{length}
	dataspace, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return err
	}
	defer dataspace.Close()

	// extend
	current := dataset.Space()
	dimsGot, _, err := current.SimpleExtentDims()
	current.Close()
	if err != nil {
		return err
	}
	rowsInFile := dimsGot[0]
	if err := dataset.Resize([]uint{rowsInFile + length}); err != nil {
		return err
	}
	filespace := dataset.Space()
	defer filespace.Close()

	start := []uint{rowsInFile}
	count := []uint{length}
	if err := filespace.SelectHyperslab(start, nil, count, nil); err != nil {
		return err
	}
	return dataset.WriteSubset(data, dataspace, filespace)
}
