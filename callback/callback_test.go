package callback

import (
	"testing"

	"github.com/deepnoodle-ai/hookasm/jtype"
	"github.com/stretchr/testify/require"
)

func TestClassName(t *testing.T) {
	require.Equal(t, VoidClass, ClassName(jtype.Void))
	require.Equal(t, ReturnableClass, ClassName(jtype.Int))
	require.Equal(t, ReturnableClass, ClassName(jtype.StringType))
	require.Equal(t, VoidType, TypeFor(jtype.Void))
	require.Equal(t, ReturnableType, TypeFor(jtype.Double))
}

func TestIsCallbackType(t *testing.T) {
	require.True(t, IsCallbackType(jtype.MustParse("Lorg/spongepowered/asm/mixin/injection/callback/CallbackInfo;")))
	require.True(t, IsCallbackType(jtype.MustParse("Lorg/spongepowered/asm/mixin/injection/callback/CallbackInfoReturnable;")))
	require.False(t, IsCallbackType(jtype.StringType))
	require.False(t, IsCallbackType(jtype.Int))
}

func TestWireSignatures(t *testing.T) {
	tests := []struct {
		ret      jtype.Type
		ctor     string
		accessor string
		desc     string
	}{
		{jtype.Int, "(Ljava/lang/String;ZI)V", "getReturnValueI", "()I"},
		{jtype.Boolean, "(Ljava/lang/String;ZZ)V", "getReturnValueZ", "()Z"},
		{jtype.Long, "(Ljava/lang/String;ZJ)V", "getReturnValueJ", "()J"},
		{jtype.Double, "(Ljava/lang/String;ZD)V", "getReturnValueD", "()D"},
		{jtype.StringType, "(Ljava/lang/String;ZLjava/lang/Object;)V", "getReturnValue", "()Ljava/lang/Object;"},
		{jtype.MustParse("[I"), "(Ljava/lang/String;ZLjava/lang/Object;)V", "getReturnValue", "()Ljava/lang/Object;"},
	}
	for _, tt := range tests {
		t.Run(tt.ret.Descriptor(), func(t *testing.T) {
			require.Equal(t, tt.ctor, CtorWithValueDesc(tt.ret))
			require.Equal(t, tt.accessor, ReturnAccessorName(tt.ret))
			require.Equal(t, tt.desc, ReturnAccessorDesc(tt.ret))
		})
	}
	require.Equal(t, "(Ljava/lang/String;Z)V", CtorDesc)
	require.Equal(t, "callbackInfo7", LocalName(7))
}

func TestInfoCancel(t *testing.T) {
	ci := NewInfo("tick", true)
	require.False(t, ci.IsCancelled())
	require.NoError(t, ci.Cancel())
	require.True(t, ci.IsCancelled())
	require.Equal(t, VoidClass, ci.ClassName())

	fixed := NewInfo("tick", false)
	require.Error(t, fixed.Cancel())
	require.False(t, fixed.IsCancelled())
	require.Error(t, fixed.SetReturnValue(1))
}

func TestReturnableSetReturnValue(t *testing.T) {
	ci := NewReturnable("compute", true, int32(5))
	require.Equal(t, int32(5), ci.ReturnValue())
	require.NoError(t, ci.SetReturnValue(int32(42)))
	require.True(t, ci.IsCancelled())
	require.Equal(t, int32(42), ci.ReturnValue())
	require.Equal(t, ReturnableClass, ci.ClassName())

	fixed := NewReturnable("compute", false, nil)
	require.Error(t, fixed.SetReturnValue(int32(1)))
	require.Nil(t, fixed.ReturnValue())
}
